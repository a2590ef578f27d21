package compliance

// AMLStatus is the screening status reported for an account.
type AMLStatus struct {
	Account   string `json:"account"`
	AMLStatus string `json:"aml_status"`
	KYCStatus string `json:"kyc_status"`
}

// StatusFor returns the account's screening status. No screening provider is
// integrated, so every account reports clear and verified.
func StatusFor(account string) AMLStatus {
	return AMLStatus{Account: account, AMLStatus: "clear", KYCStatus: "verified"}
}

package models

// BankAccount банковский счёт, на который покупатели переводят деньги
type BankAccount struct {
	Base
	BankName      string `json:"bankName"`
	BankCode      string `json:"bankCode"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	IsActive      bool   `json:"isActive"`
	Note          string `json:"note"`
}

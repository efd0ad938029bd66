package models

// IntentKind вид операции, проходящей через журнал намерений
type IntentKind string

const (
	IntentDeposit  IntentKind = "deposit"
	IntentPurchase IntentKind = "purchase"
	IntentRefund   IntentKind = "refund"
)

// TransactionType тип транзакции, которую порождает намерение.
func (k IntentKind) TransactionType() TransactionType {
	switch k {
	case IntentPurchase:
		return TransactionPurchase
	case IntentRefund:
		return TransactionRefund
	default:
		return TransactionDeposit
	}
}

// IntentStage стадия выполнения намерения
type IntentStage string

const (
	StagePending        IntentStage = "pending"
	StageBalanceApplied IntentStage = "balance_applied"
	StageLedgerWritten  IntentStage = "ledger_written"
)

// Intent запись журнала, создаваемая до изменения баланса.
// Пока запись существует, операция не завершена и будет доиграна при восстановлении.
type Intent struct {
	Base
	Kind          IntentKind  `json:"kind"`
	UserID        string      `json:"userId"`
	Delta         float64     `json:"delta"`
	RefID         string      `json:"refId"`
	SubjectID     string      `json:"subjectId,omitempty"`
	TransactionID string      `json:"transactionId"`
	Description   string      `json:"description"`
	ActorID       string      `json:"actorId,omitempty"`
	Note          string      `json:"note,omitempty"`
	BeforeBalance float64     `json:"beforeBalance"`
	AfterBalance  float64     `json:"afterBalance"`
	UserVersion   int64       `json:"userVersion"`
	Stage         IntentStage `json:"stage"`
}

// IntentID детерминированный идентификатор намерения для объекта-основания
func IntentID(kind IntentKind, refID string) string {
	return string(kind) + "-" + refID
}

package models

// Platform платформа, для которой предназначен пакет
type Platform string

const (
	PlatformAndroid  Platform = "android"
	PlatformIOS      Platform = "ios"
	PlatformEmulator Platform = "emulator"
	PlatformAll      Platform = "all"
)

// BanRisk оценка риска блокировки аккаунта при использовании пакета
type BanRisk string

const (
	BanRiskNone   BanRisk = "none"
	BanRiskLow    BanRisk = "low"
	BanRiskMedium BanRisk = "medium"
	BanRiskHigh   BanRisk = "high"
)

// FeatureItem подробное описание отдельной функции пакета
type FeatureItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Package продаваемый пакет. Цена в минимальных единицах валюты, срок в днях.
type Package struct {
	Base
	Name               string                   `json:"name"`
	Description        string                   `json:"description"`
	Price              int64                    `json:"price"`
	Duration           int                      `json:"duration"`
	Features           []string                 `json:"features"`
	DetailedFeatures   map[string][]FeatureItem `json:"detailedFeatures"`
	Icon               string                   `json:"icon"`
	Popular            bool                     `json:"popular"`
	Platform           Platform                 `json:"platform"`
	DownloadURL        string                   `json:"downloadUrl"`
	SystemRequirements string                   `json:"systemRequirements"`
	Version            string                   `json:"version"`
	BanRisk            BanRisk                  `json:"banRisk"`
	AntiBanGuarantee   bool                     `json:"antiBanGuarantee"`
}

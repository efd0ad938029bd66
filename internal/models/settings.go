package models

// SettingsID ключ единственной записи настроек сайта
const SettingsID = "main"

// FAQItem вопрос и ответ из блока FAQ
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SEO поля для поисковых систем
type SEO struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// SocialLinks ссылки на соцсети
type SocialLinks struct {
	Facebook string `json:"facebook"`
	Telegram string `json:"telegram"`
	Discord  string `json:"discord"`
	Youtube  string `json:"youtube"`
	Zalo     string `json:"zalo"`
}

// Banner баннер в шапке сайта
type Banner struct {
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
	Link    string `json:"link"`
}

// Branding название, логотип и основной цвет
type Branding struct {
	SiteName     string `json:"siteName"`
	LogoURL      string `json:"logoUrl"`
	PrimaryColor string `json:"primaryColor"`
}

// SiteSettings настройки витрины, редактируемые из админки
type SiteSettings struct {
	Base
	HeroTitle    string      `json:"heroTitle"`
	HeroSubtitle string      `json:"heroSubtitle"`
	FAQ          []FAQItem   `json:"faq"`
	SEO          SEO         `json:"seo"`
	Social       SocialLinks `json:"social"`
	Banner       Banner      `json:"banner"`
	Branding     Branding    `json:"branding"`
}

// DefaultSiteSettings настройки, которые создаются при первом чтении
func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		Base:         Base{ID: SettingsID},
		HeroTitle:    "Premium game tools",
		HeroSubtitle: "Instant delivery after payment",
		FAQ: []FAQItem{
			{Question: "How do I top up my balance?", Answer: "Create a deposit request and transfer the exact amount with the reference code."},
			{Question: "How long does approval take?", Answer: "Deposits are usually approved within 15 minutes during working hours."},
		},
		SEO: SEO{
			Title:       "Game tools store",
			Description: "Packages for android, ios and emulators",
			Keywords:    []string{"game", "tools", "mod"},
		},
		Branding: Branding{
			SiteName:     "HackStore",
			PrimaryColor: "#7c3aed",
		},
	}
}

package models

// QuotaPeriod is the window a question quota applies to.
type QuotaPeriod string

const (
	QuotaDaily   QuotaPeriod = "daily"
	QuotaMonthly QuotaPeriod = "monthly"
)

// QuotaPolicy limits how many questions a student may ask per period.
// User "*" matches every student.
type QuotaPolicy struct {
	User         string      `yaml:"user" json:"user"`
	MaxQuestions int         `yaml:"max_questions" json:"max_questions"`
	Period       QuotaPeriod `yaml:"period" json:"period"`
}

// QuotaStatus reports usage against one policy.
type QuotaStatus struct {
	Policy    QuotaPolicy `json:"policy"`
	Used      int         `json:"used"`
	Remaining int         `json:"remaining"`
}

package storage

type StatTable struct {
	ID             int64
	StatCode       string
	ParentStatCode string
	StatName       string
	Cycle          string
	Searchable     bool
	OrgName        string
	ExtraInfo      string
}

type StatItem struct {
	ID             int64
	TableID        int64
	GrpCode        string
	GrpName        string
	ItemCode       string
	ItemName       string
	ParentItemCode string
	ParentItemName string
	Cycle          string
	StartTime      string
	EndTime        string
	DataCount      int64
	UnitName       string
	Weight         string
}

type StatValue struct {
	ItemID      int64
	Time        string
	PeriodStart string
	Value       float64
	UnitName    string
	ItemName    string
}

type InvestorFlow struct {
	Market                 string
	Date                   string
	IndexClose             float64
	IndexChange            float64
	ChangeSign             string
	ChangeRate             float64
	IndexOpen              float64
	IndexHigh              float64
	IndexLow               float64
	PrevClose              float64
	ForeignNetQty          int64
	IndividualNetQty       int64
	InstitutionNetQty      int64
	ForeignNetAmount       int64
	IndividualNetAmount    int64
	InstitutionNetAmount   int64
	SecuritiesNetAmount    int64
	TrustNetAmount         int64
	PrivateEquityNetAmount int64
	BankNetAmount          int64
	InsuranceNetAmount     int64
	MerchantBankNetAmount  int64
	PensionNetAmount       int64
	OtherCorpNetAmount     int64
}

type AlertEvent struct {
	ID        int64
	EventID   string
	Code      string
	Name      string
	Price     float64
	Reasons   string
	CreatedAt string
}

package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is an amount tagged with its ISO currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// ProductDescriptor is the canonical form of the source marketplace item.
// Immutable once extracted.
type ProductDescriptor struct {
	SourceURL       string            `json:"sourceUrl"`
	ProductID       string            `json:"productId"`
	Title           string            `json:"title"`
	Price           Money             `json:"price"`
	CategoryHint    string            `json:"categoryHint,omitempty"`
	Characteristics map[string]string `json:"characteristics,omitempty"`
	ImagePrints     []string          `json:"imagePrints,omitempty"`
	WeightGrams     float64           `json:"weightGrams,omitempty"`
	Dimensions      string            `json:"dimensions,omitempty"`
}

// Candidate is one trading-platform listing under evaluation.
// Immutable once fetched.
type Candidate struct {
	ListingID    string  `json:"listingId"`
	Title        string  `json:"title"`
	UnitPrice    Money   `json:"unitPrice"`
	MinOrderQty  int     `json:"minOrderQty,omitempty"`
	SellerName   string  `json:"sellerName,omitempty"`
	SellerRating float64 `json:"sellerRating,omitempty"`
	URL          string  `json:"url"`
}

// MatchScore relates one descriptor to one candidate.
type MatchScore struct {
	Score           float64 `json:"score"`
	TitleSimilarity float64 `json:"titleSimilarity"`
	DiscountRatio   float64 `json:"discountRatio"`
	CategoryMatch   bool    `json:"categoryMatch"`
	Accepted        bool    `json:"accepted"`
}

// CostBreakdown is the landed-cost computation for one candidate, in the
// target currency.
type CostBreakdown struct {
	PurchasePrice Money           `json:"purchasePrice"`
	DutyCost      Money           `json:"dutyCost"`
	ShippingCost  Money           `json:"shippingCost"`
	PackagingCost Money           `json:"packagingCost"`
	AgentFee      Money           `json:"agentFee"`
	LandedCost    Money           `json:"landedCost"`
	TotalFees     Money           `json:"totalFees"`
	BreakEven     Money           `json:"breakEven"`
	Margin        Money           `json:"margin"`
	MarginPct     decimal.Decimal `json:"marginPct"`
}

type TaskState string

const (
	StateCreated    TaskState = "created"
	StateExtracting TaskState = "extracting"
	StateSearching  TaskState = "searching"
	StateMatching   TaskState = "matching"
	StateCosting    TaskState = "costing"
	StateFinalizing TaskState = "finalizing"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
	StateCancelled  TaskState = "cancelled"
)

var stateRank = map[TaskState]int{
	StateCreated:    0,
	StateExtracting: 1,
	StateSearching:  2,
	StateMatching:   3,
	StateCosting:    4,
	StateFinalizing: 5,
	StateCompleted:  6,
	StateFailed:     6,
	StateCancelled:  6,
}

func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanAdvanceTo reports whether moving to next keeps the state progression
// monotonic. Terminal states accept no further transitions.
func (s TaskState) CanAdvanceTo(next TaskState) bool {
	if s.Terminal() {
		return false
	}
	return stateRank[next] > stateRank[s]
}

// ResultEntry is one (candidate, score, cost) triple accumulated by a task.
// Cost stays nil until the costing stage has run for the entry.
type ResultEntry struct {
	Candidate Candidate      `json:"candidate"`
	Score     MatchScore     `json:"score"`
	Cost      *CostBreakdown `json:"cost,omitempty"`
}

// Task is one end-to-end processing request. Owned by the orchestrator and
// mutated only through state transitions.
type Task struct {
	ID          string             `json:"id"`
	RequesterID string             `json:"requesterId"`
	Reference   string             `json:"reference"`
	State       TaskState          `json:"state"`
	ErrKind     ErrorKind          `json:"errKind,omitempty"`
	ErrDetail   string             `json:"errDetail,omitempty"`
	Descriptor  *ProductDescriptor `json:"descriptor,omitempty"`
	Entries     []ResultEntry      `json:"entries,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Report is the assembled result of a finished task, entries ordered by
// margin percentage descending.
type Report struct {
	TaskID      string            `json:"taskId"`
	RequesterID string            `json:"requesterId"`
	Reference   string            `json:"reference"`
	Descriptor  ProductDescriptor `json:"descriptor"`
	Entries     []ResultEntry     `json:"entries"`
	NoViable    bool              `json:"noViable"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

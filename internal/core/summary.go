package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// BudgetUsage compares a budget limit with what was spent against it.
type BudgetUsage struct {
	Budget    Budget `json:"budget"`
	Spent     Money  `json:"spent"`
	Remaining Money  `json:"remaining"`
	Exceeded  bool   `json:"exceeded"`
}

// NewBudgetUsage computes remaining and exceeded for the given spend.
func NewBudgetUsage(b Budget, spent Money) BudgetUsage {
	remaining := b.Limit.Sub(spent)
	return BudgetUsage{
		Budget:    b,
		Spent:     spent,
		Remaining: remaining,
		Exceeded:  remaining.Cents < 0,
	}
}

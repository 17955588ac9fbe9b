package model

import "time"

// CategoryType is the root of the three-level category tree (e.g. Income, Expense).
type CategoryType struct {
	CreatedAt time.Time
	Name      string
	ID        int64
}

// Category groups sub-categories under a type.
type Category struct {
	CreatedAt time.Time
	Name      string
	ID        int64
	TypeID    int64
}

// SubCategory is the leaf of the category tree and the only level a rule can target.
type SubCategory struct {
	CreatedAt  time.Time
	Name       string
	ID         int64
	CategoryID int64
	IsDeleted  bool
}

// CategoryPath is a sub-category together with its two ancestors.
// It is always derived from the sub-category, never assembled by hand.
type CategoryPath struct {
	TypeName        string
	CategoryName    string
	SubCategoryName string
	TypeID          int64
	CategoryID      int64
	SubCategoryID   int64
}

// Account is a ledger account used for bookkeeping classification.
type Account struct {
	CreatedAt time.Time
	Code      string
	Name      string
	ID        int64
	IsActive  bool
}

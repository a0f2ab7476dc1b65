package core

// TransferCategory is reserved for the two legs of a transfer.
const TransferCategory = "Transferencia"

var (
	expenseCategories = []string{"Comida", "Transporte", "Vivienda", "Ocio", "Salud", "Compras", "Servicios", "Otros"}
	incomeCategories  = []string{"Salario", "Ventas", "Regalo", "Inversiones", "Otros"}
)

// Categories lists the user-selectable categories per transaction type.
type Categories struct {
	Income  []string `json:"income"`
	Expense []string `json:"expense"`
}

// AllCategories returns a copy of the allowed categories.
func AllCategories() Categories {
	return Categories{
		Income:  append([]string(nil), incomeCategories...),
		Expense: append([]string(nil), expenseCategories...),
	}
}

// CategoryAllowed reports whether category may be used on a user-created
// transaction of type t. The transfer category is never allowed here.
func CategoryAllowed(t TransactionType, category string) bool {
	var allowed []string
	switch t {
	case Income:
		allowed = incomeCategories
	case Expense:
		allowed = expenseCategories
	default:
		return false
	}
	for _, c := range allowed {
		if c == category {
			return true
		}
	}
	return false
}

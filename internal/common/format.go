package common

import (
	"fmt"
	"strings"

	"p2p-coin-desk-go/internal/models"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintSeparatorNewline prints a separator with a newline before it
func PrintSeparatorNewline(char string, width int) {
	fmt.Println("\n" + strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// PrintRequest prints one request as a box-drawing list item.
func PrintRequest(req models.Request, currency string, isLast bool) {
	fmt.Printf("%s#%s  %-4s %-8s %s %s  =  %s %s\n",
		BoxPrefix(isLast), req.ShortId(), req.Type(), req.Status,
		req.Amount.String(), req.CoinSymbol, req.TotalPrice.StringFixed(2), currency)

	detail := BoxDetailPrefix(isLast)
	fmt.Printf("%s   user: %s  at %s\n", detail, req.UserEmail, req.CreatedAt.Format("2006-01-02 15:04:05"))
	switch s := req.Settlement.(type) {
	case models.BuySettlement:
		fmt.Printf("%s   paid via %s from %s\n", detail, s.PaymentMethod, s.PaymentNumber)
	case models.SellSettlement:
		fmt.Printf("%s   payout to %s\n", detail, s.WalletAddress)
	}
}

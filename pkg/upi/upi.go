// Package upi builds UPI payment intent links and classifies payer VPAs.
// Link generation only requests payment; nothing here verifies that a
// payment actually happened.
package upi

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// App is the payment app a deep link targets.
type App string

const (
	AppPhonePe App = "PHONEPE"
	AppGPay    App = "GPAY"
	AppPaytm   App = "PAYTM"
	AppOther   App = "OTHER"
)

var (
	phonePeHandles = map[string]struct{}{"ybl": {}, "ibl": {}, "axl": {}}
	gpayHandles    = map[string]struct{}{"oksbi": {}, "okaxis": {}, "okicici": {}, "okhdfcbank": {}}
)

// Intent holds the parameters of a single payment request.
type Intent struct {
	VPA             string
	PayeeName       string
	Amount          float64
	TransactionNote string
	TransactionRef  string
}

// fixedAmount renders an amount with exactly two decimal places.
func fixedAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

// component percent-encodes a query component, keeping spaces as %20.
func component(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// GenericLink builds the generic upi://pay URI. Parameter order is fixed:
// pa, pn, mc, tr, tn, am, cu. The merchant code is always 0000 and the
// currency always INR. Callers must validate the VPA upstream; an empty VPA
// yields a structurally malformed link.
func GenericLink(in Intent) string {
	params := []struct{ key, value string }{
		{"pa", in.VPA},
		{"pn", in.PayeeName},
		{"mc", "0000"},
		{"tr", in.TransactionRef},
		{"tn", in.TransactionNote},
		{"am", fixedAmount(in.Amount)},
		{"cu", "INR"},
	}
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, p.key+"="+url.QueryEscape(p.value))
	}
	return "upi://pay?" + strings.Join(pairs, "&")
}

// PhonePeLink wraps a raw phonepe:// intent in the https://phon.pe/ redirect
// by base64-encoding the whole intent string. mode=02 selects the secure
// intent flow.
func PhonePeLink(amount float64, orderID, vpa, name string) string {
	raw := fmt.Sprintf("phonepe://pay?pa=%s&pn=%s&am=%s&tr=%s&tn=Order %s&cu=INR&mode=02",
		vpa, component(name), fixedAmount(amount), orderID, orderID)
	return "https://phon.pe/" + base64.StdEncoding.EncodeToString([]byte(raw))
}

// GPayLink builds the Google Pay (Tez) request URI.
func GPayLink(amount float64, orderID, vpa, name string) string {
	return fmt.Sprintf("gpay://upi/request?pa=%s&pn=%s&am=%s&tr=%s&tn=Payment for Order %s&cu=INR",
		vpa, component(name), fixedAmount(amount), orderID, orderID)
}

// PaytmLink builds the Paytm intent URI.
func PaytmLink(amount float64, orderID, vpa, name string) string {
	return fmt.Sprintf("paytmmp://pay?pa=%s&pn=%s&am=%s&tr=%s&tn=Payment for Order %s&cu=INR",
		vpa, component(name), fixedAmount(amount), orderID, orderID)
}

// DetectApp guesses the payer's UPI app from the handle after the @ sign.
// Best effort only: it decides which deep link to try first, and the generic
// link/QR remains the fallback for everything else.
func DetectApp(vpa string) App {
	if vpa == "" || !strings.Contains(vpa, "@") {
		return AppOther
	}
	// Only the segment between the first two @ signs counts as the handle.
	handle := strings.ToLower(strings.Split(vpa, "@")[1])

	if _, ok := phonePeHandles[handle]; ok {
		return AppPhonePe
	}
	if _, ok := gpayHandles[handle]; ok {
		return AppGPay
	}
	if handle == "paytm" {
		return AppPaytm
	}
	return AppOther
}

// LinkFor picks the app-specific link for a detected app, falling back to
// the generic intent for unknown handles.
func LinkFor(app App, amount float64, orderID, merchantVPA, merchantName string) string {
	switch app {
	case AppPhonePe:
		return PhonePeLink(amount, orderID, merchantVPA, merchantName)
	case AppGPay:
		return GPayLink(amount, orderID, merchantVPA, merchantName)
	case AppPaytm:
		return PaytmLink(amount, orderID, merchantVPA, merchantName)
	default:
		return GenericLink(Intent{
			VPA:             merchantVPA,
			PayeeName:       merchantName,
			Amount:          amount,
			TransactionNote: "Order #" + orderID,
			TransactionRef:  orderID,
		})
	}
}

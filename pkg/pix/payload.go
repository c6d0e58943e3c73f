// Package pix encodes and decodes the EMV merchant-presented payload carried in
// manual payment QR codes.
package pix

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	idPayloadFormat   = "00"
	idMerchantAccount = "26"
	idCategoryCode    = "52"
	idCurrency        = "53"
	idAmount          = "54"
	idCountry         = "58"
	idMerchantName    = "59"
	idMerchantCity    = "60"
	idAdditionalData  = "62"
	idCRC             = "63"

	idAccountGUI         = "00"
	idAccountKey         = "01"
	idAccountDescription = "02"
	idAdditionalTxID     = "05"

	payloadFormatIndicator = "01"
	accountGUI             = "br.gov.bcb.pix"
	categoryCode           = "0000"
	currencyBRL            = "986"
	countryBR              = "BR"
	emptyReference         = "***"

	MaxMerchantNameLength = 25
	MaxMerchantCityLength = 15
	MaxReferenceLength    = 25
	maxFieldLength        = 99
	maxAmountLength       = 13
	crcFieldLength        = 4
)

var (
	ErrReceiverKeyRequired = errors.New("pix: receiver key is required")
	ErrReceiverKeyTooLong  = errors.New("pix: receiver key does not fit the merchant account field")
	ErrInvalidAmount       = errors.New("pix: amount must be positive and fit 13 characters")
	ErrMalformedPayload    = errors.New("pix: malformed payload")
	ErrChecksumMismatch    = errors.New("pix: checksum mismatch")
)

// Fields are the inputs of a static payload. Amount may be zero to let the payer choose.
type Fields struct {
	ReceiverKey  string
	MerchantName string
	MerchantCity string
	Amount       decimal.Decimal
	Description  string
	Reference    string
}

// BuildPayload serializes fields into the ID+LEN+VALUE stream terminated by the CRC field.
// Oversized names, descriptions and references are truncated, never rejected.
func BuildPayload(f Fields) (string, error) {
	key := strings.TrimSpace(f.ReceiverKey)
	if key == "" {
		return "", ErrReceiverKeyRequired
	}
	if f.Amount.IsNegative() {
		return "", ErrInvalidAmount
	}

	account, err := merchantAccount(key, f.Description)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(tlv(idPayloadFormat, payloadFormatIndicator))
	b.WriteString(tlv(idMerchantAccount, account))
	b.WriteString(tlv(idCategoryCode, categoryCode))
	b.WriteString(tlv(idCurrency, currencyBRL))
	if f.Amount.IsPositive() {
		amount := f.Amount.StringFixed(2)
		if len(amount) > maxAmountLength {
			return "", ErrInvalidAmount
		}
		b.WriteString(tlv(idAmount, amount))
	}
	b.WriteString(tlv(idCountry, countryBR))
	b.WriteString(tlv(idMerchantName, truncate(foldASCII(f.MerchantName), MaxMerchantNameLength)))
	b.WriteString(tlv(idMerchantCity, truncate(foldASCII(f.MerchantCity), MaxMerchantCityLength)))
	b.WriteString(tlv(idAdditionalData, tlv(idAdditionalTxID, SanitizeReference(f.Reference))))

	fmt.Fprintf(&b, "%s%02d", idCRC, crcFieldLength)
	body := b.String()
	return body + FormatCRC(CRC16([]byte(body))), nil
}

// SanitizeReference keeps alphanumerics only and clamps to the 25 character limit.
func SanitizeReference(ref string) string {
	var out strings.Builder
	for _, r := range foldASCII(ref) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	clean := truncate(out.String(), MaxReferenceLength)
	if clean == "" {
		return emptyReference
	}
	return clean
}

func merchantAccount(key, description string) (string, error) {
	account := tlv(idAccountGUI, accountGUI) + tlv(idAccountKey, key)
	if len(account) > maxFieldLength {
		return "", ErrReceiverKeyTooLong
	}
	desc := foldASCII(strings.TrimSpace(description))
	if desc == "" {
		return account, nil
	}
	room := maxFieldLength - len(account) - 4
	if room <= 0 {
		return account, nil
	}
	return account + tlv(idAccountDescription, truncate(desc, room)), nil
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return strings.TrimSpace(value[:max])
}

// foldASCII strips diacritics and drops anything still outside printable ASCII,
// so byte length equals character length in every emitted field.
func foldASCII(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	var out strings.Builder
	for _, r := range folded {
		if r >= 0x20 && r < 0x7F {
			out.WriteRune(r)
		}
	}
	return out.String()
}

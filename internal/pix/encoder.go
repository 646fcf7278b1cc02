// Package pix encodes BR Code payment payloads: the EMV-style tag-length-value
// string terminated by a CRC16 checksum that PIX readers scan or paste.
package pix

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// EMV tag identifiers, in the order they appear in the payload.
const (
	tagPayloadFormat      = "00"
	tagMerchantAccount    = "26"
	tagMerchantCategory   = "52"
	tagCurrency           = "53"
	tagAmount             = "54"
	tagCountryCode        = "58"
	tagMerchantName       = "59"
	tagMerchantCity       = "60"
	tagAdditionalData     = "62"
	tagCRC                = "63"
	subTagAccountGUI      = "00"
	subTagAccountKey      = "01"
	subTagTransactionID   = "05"
	payloadFormatValue    = "01"
	merchantCategoryValue = "0000"
	currencyBRL           = "986"
	countryBR             = "BR"
	accountGUI            = "BR.GOV.BCB.PIX"
)

// maxFieldLen is imposed by the two-digit length prefix of every TLV field.
const maxFieldLen = 99

// MaxTransactionIDLen caps the additional-data transaction id sub-field.
const MaxTransactionIDLen = 25

// ErrNonPositiveAmount is returned when the charge amount is zero or negative.
var ErrNonPositiveAmount = errors.New("pix: amount must be positive")

// FieldError reports a payload field that is empty or exceeds the TLV length budget.
type FieldError struct {
	Field  string
	Length int
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if e.Length == 0 {
		return fmt.Sprintf("pix: field %s must not be empty", e.Field)
	}
	return fmt.Sprintf("pix: field %s is %d characters, limit is %d", e.Field, e.Length, maxFieldLen)
}

// Payload carries the inputs of a PIX charge. Encoding is a pure function of
// these fields; identical inputs always yield an identical string.
type Payload struct {
	Key           string
	AmountCents   int64
	MerchantName  string
	MerchantCity  string
	TransactionID string
}

// Encode renders the payload as an EMV TLV string ending in tag 63 ("6304")
// followed by four uppercase hex CRC digits.
func (p Payload) Encode() (string, error) {
	if p.AmountCents <= 0 {
		return "", ErrNonPositiveAmount
	}
	fields := []struct {
		name  string
		value string
		limit int
	}{
		{"key", p.Key, maxFieldLen},
		{"merchant_name", p.MerchantName, maxFieldLen},
		{"merchant_city", p.MerchantCity, maxFieldLen},
		{"transaction_id", p.TransactionID, MaxTransactionIDLen},
	}
	for _, f := range fields {
		if len(f.value) == 0 {
			return "", &FieldError{Field: f.name}
		}
		if len(f.value) > f.limit {
			return "", &FieldError{Field: f.name, Length: len(f.value)}
		}
	}

	account := tlv(subTagAccountGUI, accountGUI) + tlv(subTagAccountKey, p.Key)
	if len(account) > maxFieldLen {
		return "", &FieldError{Field: "merchant_account", Length: len(account)}
	}
	additional := tlv(subTagTransactionID, p.TransactionID)

	payload := tlv(tagPayloadFormat, payloadFormatValue) +
		tlv(tagMerchantAccount, account) +
		tlv(tagMerchantCategory, merchantCategoryValue) +
		tlv(tagCurrency, currencyBRL) +
		tlv(tagAmount, formatAmount(p.AmountCents)) +
		tlv(tagCountryCode, countryBR) +
		tlv(tagMerchantName, p.MerchantName) +
		tlv(tagMerchantCity, p.MerchantCity) +
		tlv(tagAdditionalData, additional)

	// The checksum covers everything written so far plus its own tag and
	// length marker ("6304"), but not the yet-unknown checksum digits.
	payload += tagCRC + "04"
	return fmt.Sprintf("%s%04X", payload, CRC16(payload)), nil
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// formatAmount renders minor units as a major-unit decimal string without
// thousands separators, e.g. 19990 -> "199.90".
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// CRC16 computes the CRC16/CCITT-FALSE checksum used by BR Code: polynomial
// 0x1021, initial value 0xFFFF, no final XOR, one input byte at a time.
func CRC16(data string) uint16 {
	const polynomial = 0x1021
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// NewTransactionID produces an opaque id for correlating a payment attempt:
// a millisecond timestamp plus random entropy (ULID), truncated to the
// sub-field budget imposed by the two-digit TLV length prefix.
func NewTransactionID() string {
	id := ulid.Make().String()
	if len(id) > MaxTransactionIDLen {
		id = id[:MaxTransactionIDLen]
	}
	return id
}

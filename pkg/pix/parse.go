package pix

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Field is one decoded ID+LEN+VALUE tuple.
type Field struct {
	ID    string
	Value string
}

// Decoded is the structured view of a parsed payload.
type Decoded struct {
	Fields
	Checksum string
	Tuples   []Field
}

// Parse splits a payload into tuples and verifies the trailing checksum.
func Parse(payload string) (*Decoded, error) {
	tuples, err := splitTuples(payload)
	if err != nil {
		return nil, err
	}
	if len(tuples) == 0 {
		return nil, ErrMalformedPayload
	}
	last := tuples[len(tuples)-1]
	if last.ID != idCRC || len(last.Value) != crcFieldLength {
		return nil, fmt.Errorf("%w: missing checksum trailer", ErrMalformedPayload)
	}
	body := payload[:len(payload)-crcFieldLength]
	if got := FormatCRC(CRC16([]byte(body))); got != last.Value {
		return nil, fmt.Errorf("%w: expected %s got %s", ErrChecksumMismatch, got, last.Value)
	}

	out := &Decoded{Checksum: last.Value, Tuples: tuples}
	for _, t := range tuples {
		switch t.ID {
		case idMerchantAccount:
			nested, err := splitTuples(t.Value)
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				switch n.ID {
				case idAccountKey:
					out.ReceiverKey = n.Value
				case idAccountDescription:
					out.Description = n.Value
				}
			}
		case idAmount:
			amount, err := decimal.NewFromString(t.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: amount %q", ErrMalformedPayload, t.Value)
			}
			out.Amount = amount
		case idMerchantName:
			out.MerchantName = t.Value
		case idMerchantCity:
			out.MerchantCity = t.Value
		case idAdditionalData:
			nested, err := splitTuples(t.Value)
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				if n.ID == idAdditionalTxID {
					out.Reference = n.Value
				}
			}
		}
	}
	return out, nil
}

func splitTuples(data string) ([]Field, error) {
	var fields []Field
	for pos := 0; pos < len(data); {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated header at %d", ErrMalformedPayload, pos)
		}
		id := data[pos : pos+2]
		length, err := strconv.Atoi(data[pos+2 : pos+4])
		if err != nil || length < 0 {
			return nil, fmt.Errorf("%w: bad length at %d", ErrMalformedPayload, pos)
		}
		start := pos + 4
		end := start + length
		if end > len(data) {
			return nil, fmt.Errorf("%w: field %s overruns payload", ErrMalformedPayload, id)
		}
		fields = append(fields, Field{ID: id, Value: data[start:end]})
		pos = end
	}
	return fields, nil
}

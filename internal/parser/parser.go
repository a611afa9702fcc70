// Package parser turns provider pricing catalogs into normalized price
// tuples. The source documents are large (the AWS EC2 offer file alone
// is multiple GB), so every parser streams token-by-token and never
// materializes a whole document. Malformed entries are skipped, never
// fatal; provider-level failures are the orchestrator's problem.
package parser

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// PriceTuple is one normalized price observation. PricingModel is
// always "on-demand" for bulk catalog sources; reserved and spot prices
// are derived at resolution time.
type PriceTuple struct {
	Provider     string
	Service      string
	ResourceType string
	Region       string
	PricingModel string
	HourlyPrice  float64
	Currency     string
}

// EmitFunc receives tuples as the parser streams them. Parsers are
// restartable: re-running one over the same document emits the same
// sequence from scratch.
type EmitFunc func(PriceTuple)

// expectDelim consumes one token and checks it is the given delimiter.
func expectDelim(dec *json.Decoder, want rune) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || rune(d) != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// skipValue consumes and discards the next JSON value, tracking nesting
// depth so multi-GB subtrees are skipped without buffering.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("unexpected EOF while skipping value")
			}
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

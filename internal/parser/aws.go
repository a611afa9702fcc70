package parser

import (
	"fmt"
	"io"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// The AWS offer file interleaves a products section and a terms section
// that reference each other by SKU. The terms section comes after the
// products and is far larger, so the join is done in two passes over the
// same file: pass 1 buffers a bounded SKU index of the products we care
// about, pass 2 streams terms.OnDemand and joins against that index.

type awsProduct struct {
	ProductFamily string            `json:"productFamily"`
	Attributes    map[string]string `json:"attributes"`
}

type awsTerm struct {
	PriceDimensions map[string]awsPriceDimension `json:"priceDimensions"`
}

type awsPriceDimension struct {
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

// awsProductAttrs is what pass 1 keeps per SKU: just enough to emit a
// tuple in pass 2.
type awsProductAttrs struct {
	InstanceType string
	Location     string
}

// ParseAWSOffer streams an AWS offer document from disk and emits one
// tuple per hourly on-demand price dimension of every Compute Instance
// product that carries both an instance type and a location.
func ParseAWSOffer(path string, emit EmitFunc, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open offer file: %w", err)
	}
	index, err := BuildAWSProductIndex(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("pass 1 failed: %w", err)
	}
	logger.Info().Int("products", len(index)).Msg("built product index, streaming terms")

	f, err = os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen offer file: %w", err)
	}
	defer f.Close()
	if err := StreamAWSOnDemandTerms(f, index, emit, logger); err != nil {
		return fmt.Errorf("pass 2 failed: %w", err)
	}
	return nil
}

// BuildAWSProductIndex is pass 1: it scans the products section and
// returns SKU -> attributes for Compute Instance products that have both
// instanceType and location. Everything else never produces a tuple,
// even if a matching term exists.
func BuildAWSProductIndex(r io.Reader) (map[string]awsProductAttrs, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	index := make(map[string]awsProductAttrs)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		if key != "products" {
			if err := skipValue(dec); err != nil {
				return nil, err
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			skuTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			sku, _ := skuTok.(string)

			var prod awsProduct
			if err := dec.Decode(&prod); err != nil {
				return nil, fmt.Errorf("failed to decode product %s: %w", sku, err)
			}
			if prod.ProductFamily != "Compute Instance" {
				continue
			}
			instanceType := prod.Attributes["instanceType"]
			location := prod.Attributes["location"]
			if instanceType == "" || location == "" {
				continue
			}
			index[sku] = awsProductAttrs{InstanceType: instanceType, Location: location}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		// products precede terms; no need to scan the rest in this pass
		return index, nil
	}
	return index, nil
}

// StreamAWSOnDemandTerms is pass 2: it walks terms.OnDemand lazily and
// emits a tuple for every price dimension priced per hour whose SKU is
// in the pass-1 index. Terms for unindexed SKUs are skipped without
// decoding their subtree.
func StreamAWSOnDemandTerms(r io.Reader, index map[string]awsProductAttrs, emit EmitFunc, logger zerolog.Logger) error {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if key != "terms" {
			if err := skipValue(dec); err != nil {
				return err
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		for dec.More() {
			termTypeTok, err := dec.Token()
			if err != nil {
				return err
			}
			termType, _ := termTypeTok.(string)
			if termType != "OnDemand" {
				if err := skipValue(dec); err != nil {
					return err
				}
				continue
			}

			if err := expectDelim(dec, '{'); err != nil {
				return err
			}
			for dec.More() {
				skuTok, err := dec.Token()
				if err != nil {
					return err
				}
				sku, _ := skuTok.(string)

				attrs, relevant := index[sku]
				if !relevant {
					if err := skipValue(dec); err != nil {
						return err
					}
					continue
				}

				var terms map[string]awsTerm
				if err := dec.Decode(&terms); err != nil {
					logger.Warn().Str("sku", sku).Err(err).Msg("skipping malformed term")
					continue
				}
				emitAWSTerms(sku, attrs, terms, emit, logger)
			}
			if err := expectDelim(dec, '}'); err != nil {
				return err
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
		return nil
	}
	return nil
}

func emitAWSTerms(sku string, attrs awsProductAttrs, terms map[string]awsTerm, emit EmitFunc, logger zerolog.Logger) {
	for _, term := range terms {
		for _, dim := range term.PriceDimensions {
			if dim.Unit != "Hrs" {
				continue
			}
			amountStr, ok := dim.PricePerUnit["USD"]
			if !ok {
				continue
			}
			price, err := strconv.ParseFloat(amountStr, 64)
			if err != nil {
				logger.Warn().Str("sku", sku).Str("price", amountStr).Msg("skipping unparseable price")
				continue
			}
			emit(PriceTuple{
				Provider:     "aws",
				Service:      "ec2",
				ResourceType: attrs.InstanceType,
				Region:       attrs.Location,
				PricingModel: "on-demand",
				HourlyPrice:  price,
				Currency:     "USD",
			})
		}
	}
}

package parser

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const awsOfferDoc = `{
  "formatVersion": "v1.0",
  "publicationDate": "2024-01-15T00:00:00Z",
  "products": {
    "SKU1": {
      "productFamily": "Compute Instance",
      "attributes": {"instanceType": "t3.micro", "location": "US East (N. Virginia)"}
    },
    "SKU2": {
      "productFamily": "Storage",
      "attributes": {"volumeType": "gp3"}
    },
    "SKU3": {
      "productFamily": "Compute Instance",
      "attributes": {"instanceType": "m5.large"}
    }
  },
  "terms": {
    "OnDemand": {
      "SKU1": {
        "SKU1.TERM1": {
          "priceDimensions": {
            "SKU1.TERM1.DIM1": {"unit": "Hrs", "pricePerUnit": {"USD": "0.0104"}},
            "SKU1.TERM1.DIM2": {"unit": "Quantity", "pricePerUnit": {"USD": "5.00"}}
          }
        }
      },
      "SKU2": {
        "SKU2.TERM1": {
          "priceDimensions": {
            "SKU2.TERM1.DIM1": {"unit": "Hrs", "pricePerUnit": {"USD": "0.08"}}
          }
        }
      }
    },
    "Reserved": {
      "SKU1": {
        "SKU1.TERM2": {
          "priceDimensions": {
            "SKU1.TERM2.DIM1": {"unit": "Hrs", "pricePerUnit": {"USD": "0.0062"}}
          }
        }
      }
    }
  }
}`

func TestBuildAWSProductIndex(t *testing.T) {
	index, err := BuildAWSProductIndex(strings.NewReader(awsOfferDoc))
	require.NoError(t, err)

	// SKU2 is not a compute instance, SKU3 lacks a location
	require.Len(t, index, 1)
	require.Equal(t, "t3.micro", index["SKU1"].InstanceType)
	require.Equal(t, "US East (N. Virginia)", index["SKU1"].Location)
}

func TestStreamAWSOnDemandTerms(t *testing.T) {
	index, err := BuildAWSProductIndex(strings.NewReader(awsOfferDoc))
	require.NoError(t, err)

	var tuples []PriceTuple
	err = StreamAWSOnDemandTerms(strings.NewReader(awsOfferDoc), index,
		func(p PriceTuple) { tuples = append(tuples, p) }, zerolog.Nop())
	require.NoError(t, err)

	// One Hrs dimension for the indexed SKU1. SKU2's term is skipped
	// because pass 1 excluded it, the Quantity dimension because it is
	// not hourly, and the Reserved section entirely.
	require.Len(t, tuples, 1)
	got := tuples[0]
	require.Equal(t, "aws", got.Provider)
	require.Equal(t, "ec2", got.Service)
	require.Equal(t, "t3.micro", got.ResourceType)
	require.Equal(t, "US East (N. Virginia)", got.Region)
	require.Equal(t, "on-demand", got.PricingModel)
	require.InDelta(t, 0.0104, got.HourlyPrice, 1e-9)
	require.Equal(t, "USD", got.Currency)
}

func TestStreamAWSOnDemandTermsUnparseablePrice(t *testing.T) {
	doc := `{
	  "products": {
	    "SKU1": {
	      "productFamily": "Compute Instance",
	      "attributes": {"instanceType": "t3.micro", "location": "EU (Paris)"}
	    }
	  },
	  "terms": {
	    "OnDemand": {
	      "SKU1": {
	        "SKU1.T": {
	          "priceDimensions": {
	            "D1": {"unit": "Hrs", "pricePerUnit": {"USD": "not-a-number"}},
	            "D2": {"unit": "Hrs", "pricePerUnit": {"USD": "0.05"}}
	          }
	        }
	      }
	    }
	  }
	}`
	index, err := BuildAWSProductIndex(strings.NewReader(doc))
	require.NoError(t, err)

	var tuples []PriceTuple
	err = StreamAWSOnDemandTerms(strings.NewReader(doc), index,
		func(p PriceTuple) { tuples = append(tuples, p) }, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	require.InDelta(t, 0.05, tuples[0].HourlyPrice, 1e-9)
}

func TestSkipValue(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"nested object", `{"skip": {"a": {"b": [1, 2, {"c": 3}]}}, "keep": 1}`},
		{"array", `{"skip": [1, [2, [3]]], "keep": 1}`},
		{"scalar", `{"skip": "hello", "keep": 1}`},
		{"null", `{"skip": null, "keep": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := newTestDecoder(t, tt.doc)
			require.NoError(t, expectDelim(dec, '{'))

			tok, err := dec.Token()
			require.NoError(t, err)
			require.Equal(t, "skip", tok)
			require.NoError(t, skipValue(dec))

			tok, err = dec.Token()
			require.NoError(t, err)
			require.Equal(t, "keep", tok)
		})
	}
}

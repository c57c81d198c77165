package dto

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func validRequest() CreateShipmentRequest {
	return CreateShipmentRequest{
		MerchantReference: "ORDER-1",
		Recipient:         RecipientRequest{Name: "Ada", Address1: "1 Main", PostalCode: "1011", City: "Amsterdam", Country: "NL"},
		Parcel:            ParcelRequest{WeightGrams: 500, LengthCM: 10, WidthCM: 10, HeightCM: 5},
	}
}

func TestCreateShipmentRequestValidate(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := map[string]func(*CreateShipmentRequest){
		"missing reference": func(r *CreateShipmentRequest) { r.MerchantReference = "" },
		"lowercase country": func(r *CreateShipmentRequest) { r.Recipient.Country = "nl" },
		"missing city":      func(r *CreateShipmentRequest) { r.Recipient.City = "" },
		"zero weight":       func(r *CreateShipmentRequest) { r.Parcel.WeightGrams = 0 },
		"negative height":   func(r *CreateShipmentRequest) { r.Parcel.HeightCM = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			err := req.Validate()
			var errs validation.Errors
			if !errors.As(err, &errs) {
				t.Fatalf("expected validation errors, got %v", err)
			}
		})
	}
}

func TestFieldErrors(t *testing.T) {
	req := validRequest()
	req.Recipient.City = ""
	if _, ok := FieldErrors(req.Validate()).(validation.Errors); !ok {
		t.Fatal("expected ozzo errors to pass through")
	}
	if got := FieldErrors(errors.New("unexpected end of JSON input")); got != "unexpected end of JSON input" {
		t.Fatalf("expected plain message, got %#v", got)
	}
	if FieldErrors(nil) != nil {
		t.Fatal("nil error should have no detail")
	}
}

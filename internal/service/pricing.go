package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/proration"
	srv "github.com/stackbill/stackbill/internal/domain/service"
	"github.com/stackbill/stackbill/internal/domain/settings"
	"github.com/stackbill/stackbill/internal/domain/taxrule"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// PricingService assembles priced line items for a service or candidate
// input: base price with overrides, option lines, coupon discounts, taxes
// and aggregate totals. Amounts not already in the target currency go
// through the injected converter.
type PricingService interface {
	// PriceService prices a persisted service for invoicing or quoting
	PriceService(ctx context.Context, svc *srv.Service, opts PriceOptions) (*Quote, error)

	// ResolveTaxRules returns the applicable active rules for a client,
	// most specific geographic scope first
	ResolveTaxRules(ctx context.Context, clientID string) ([]*taxrule.TaxRule, error)
}

// PriceOptions steer one pricing pass
type PriceOptions struct {
	// IncludeSetupFee adds the pricing's setup fee as its own line
	IncludeSetupFee bool

	// Tier selects which price applies: new, renewal or transfer
	Tier types.PriceTier

	// ApplyDate anchors coupon eligibility windows; zero means now
	ApplyDate time.Time

	// ProrateFrom prices a partial first period starting at this date when
	// the pricing carries a prorata day. Never set on ordinary renewals.
	ProrateFrom *time.Time
}

// PricedLine is one candidate invoice line with its tax breakdown
type PricedLine struct {
	ServiceID   *string
	Description string
	Quantity    decimal.Decimal
	Amount      decimal.Decimal
	Taxable     bool

	// TaxRules are the rules to associate when the line is committed
	TaxRules []*taxrule.TaxRule
	Taxes    *taxrule.LineTaxes
}

// Subtotal is quantity times unit amount at currency precision
func (l *PricedLine) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.Amount).Round(2)
}

// Totals aggregates a quote
type Totals struct {
	Subtotal           decimal.Decimal
	Total              decimal.Decimal
	TotalWithTax       decimal.Decimal
	TotalAfterDiscount decimal.Decimal
	TaxAmount          decimal.Decimal
	DiscountAmount     decimal.Decimal
}

// Quote is the priced representation of a service before commit
type Quote struct {
	Lines    []*PricedLine
	Totals   Totals
	Currency string

	// CouponID is set when a discount line was produced, so the caller can
	// account the usage once the invoice commits
	CouponID *string
}

type pricingService struct {
	ServiceParams
}

// NewPricingService creates a new pricing service
func NewPricingService(params ServiceParams) PricingService {
	return &pricingService{ServiceParams: params}
}

func (s *pricingService) PriceService(ctx context.Context, svc *srv.Service, opts PriceOptions) (*Quote, error) {
	pricing, err := s.CatalogRepo.GetPricing(ctx, svc.PricingID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.CatalogRepo.GetPackage(ctx, svc.PackageID)
	if err != nil {
		return nil, err
	}
	cl, err := s.ClientRepo.Get(ctx, svc.ClientID)
	if err != nil {
		return nil, err
	}

	quote := &Quote{Currency: cl.Currency}

	// unit price honoring overrides, converted to the client currency
	unit := pricing.PriceFor(opts.Tier)
	fromCurrency := pricing.Currency
	if svc.OverridePrice != nil {
		unit = *svc.OverridePrice
		if svc.OverrideCurrency != nil {
			fromCurrency = *svc.OverrideCurrency
		}
	}
	unit, err = s.Converter.Convert(ctx, unit, fromCurrency, cl.Currency)
	if err != nil {
		return nil, err
	}

	description := pkg.Name
	if opts.ProrateFrom != nil {
		prorater := proration.Prorater{
			ProrataDay: pricing.ProrataDay,
			Term:       pricing.Term,
			Period:     pricing.Period,
		}
		prorated, window, perr := prorater.ProrateAmount(*opts.ProrateFrom, unit)
		if perr != nil {
			return nil, perr
		}
		if window.Days() > 0 {
			unit = prorated
			description = fmt.Sprintf("%s (%s - %s)", pkg.Name,
				window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))
		}
	}

	quote.Lines = append(quote.Lines, &PricedLine{
		ServiceID:   &svc.ID,
		Description: description,
		Quantity:    decimal.NewFromInt(int64(svc.Qty)),
		Amount:      unit,
		Taxable:     pkg.Taxable,
	})

	// one line per configurable option
	options, err := s.CatalogRepo.ListOptions(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	for _, opt := range options {
		price, cerr := s.Converter.Convert(ctx, opt.Price, pricing.Currency, cl.Currency)
		if cerr != nil {
			return nil, cerr
		}
		quote.Lines = append(quote.Lines, &PricedLine{
			ServiceID:   &svc.ID,
			Description: fmt.Sprintf("%s - %s", pkg.Name, opt.Name),
			Quantity:    decimal.NewFromInt(int64(svc.Qty)),
			Amount:      price,
			Taxable:     pkg.Taxable,
		})
	}

	if opts.IncludeSetupFee && !pricing.SetupFee.IsZero() {
		fee, cerr := s.Converter.Convert(ctx, pricing.SetupFee, pricing.Currency, cl.Currency)
		if cerr != nil {
			return nil, cerr
		}
		quote.Lines = append(quote.Lines, &PricedLine{
			ServiceID:   &svc.ID,
			Description: fmt.Sprintf("%s - Setup Fee", pkg.Name),
			Quantity:    decimal.NewFromInt(1),
			Amount:      fee,
			Taxable:     pkg.Taxable,
		})
	}

	// discountable subtotal covers the base and option lines priced so far
	discountable := decimal.Zero
	for _, line := range quote.Lines {
		discountable = discountable.Add(line.Subtotal())
	}

	if svc.CouponID != nil {
		applyDate := opts.ApplyDate
		if applyDate.IsZero() {
			applyDate = time.Now().UTC()
		}
		cpn, cerr := s.CouponRepo.Get(ctx, *svc.CouponID)
		if cerr != nil {
			return nil, cerr
		}
		if cpn.Eligible(pkg.ID, pricing.Term, applyDate) {
			amount := cpn.Discount(discountable)
			if cpn.Type == types.CouponTypeAmount {
				converted, cvErr := s.Converter.Convert(ctx, cpn.Amount, cpn.Currency, cl.Currency)
				if cvErr != nil {
					return nil, cvErr
				}
				amount = converted
				if amount.GreaterThan(discountable) {
					amount = discountable
				}
			}
			if amount.IsPositive() {
				quote.Lines = append(quote.Lines, &PricedLine{
					Description: fmt.Sprintf("Coupon %s", cpn.Code),
					Quantity:    decimal.NewFromInt(1),
					Amount:      amount.Neg(),
					Taxable:     false,
				})
				quote.Totals.DiscountAmount = amount
				quote.CouponID = &cpn.ID
			}
		}
	}

	if err := s.applyTaxes(ctx, cl.ID, quote); err != nil {
		return nil, err
	}

	s.aggregate(quote)
	return quote, nil
}

// applyTaxes runs every taxable line through the cascade calculator when tax
// is enabled for the company and the client is not fully exempt
func (s *pricingService) applyTaxes(ctx context.Context, clientID string, quote *Quote) error {
	if !settings.GetBool(ctx, s.Settings, clientID, settings.KeyTaxEnabled) {
		return nil
	}

	rules, err := s.ResolveTaxRules(ctx, clientID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	taxExempt := settings.GetBool(ctx, s.Settings, clientID, settings.KeyTaxExempt)

	for _, line := range quote.Lines {
		if !line.Taxable {
			continue
		}
		line.TaxRules = rules
		line.Taxes = taxrule.Calculate(rules, line.Subtotal(), taxExempt)
	}
	return nil
}

func (s *pricingService) ResolveTaxRules(ctx context.Context, clientID string) ([]*taxrule.TaxRule, error) {
	cl, err := s.ClientRepo.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	active, err := s.TaxRuleRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	return taxrule.MostSpecific(active, cl.Country, cl.State), nil
}

func (s *pricingService) aggregate(quote *Quote) {
	totals := &quote.Totals

	for _, line := range quote.Lines {
		sub := line.Subtotal()
		totals.Subtotal = totals.Subtotal.Add(sub)
		totals.Total = totals.Total.Add(sub)
		totals.TotalWithTax = totals.TotalWithTax.Add(sub)

		if line.Taxes != nil {
			exclusive := line.Taxes.TotalTax.Sub(line.Taxes.InclusiveAmount)
			totals.Total = totals.Total.Add(exclusive)
			totals.TotalWithTax = totals.TotalWithTax.Add(line.Taxes.TotalTax)
			totals.TaxAmount = totals.TaxAmount.Add(line.Taxes.TotalTax)
		}
	}

	totals.TotalAfterDiscount = totals.Total
	totals.Subtotal = totals.Subtotal.Round(2)
	totals.Total = totals.Total.Round(2)
	totals.TotalWithTax = totals.TotalWithTax.Round(2)
	totals.TotalAfterDiscount = totals.TotalAfterDiscount.Round(2)
	totals.TaxAmount = totals.TaxAmount.Round(2)
}

// ValidationErrorf builds the field-keyed failure shape shared by the
// billing services
func ValidationErrorf(field, format string, args ...any) error {
	return ierr.NewError("validation failed").
		WithHintf(format, args...).
		WithReportableDetails(map[string]any{"field": field}).
		Mark(ierr.ErrValidation)
}

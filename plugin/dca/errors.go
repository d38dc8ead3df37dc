package dca

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

type ErrorKind int

const (
	KindEmptyValue ErrorKind = iota + 1
	KindMalformedInput
	KindInvalidIbcDenom
	KindNoFundsSent
	KindMultipleFundsSent
	KindInvalidToken
	KindMaxSchedulesReached
	KindNotInstantiated
	KindAlreadyInstantiated
	KindScheduleNotFound
	KindNoFundsAvailable
	KindUnsupportedMarket
	KindDisabledMarket
	KindPriceNotAvailable
	KindPriceIsNil
	KindPriceTooOld
	KindPriceIsNegative
	KindInvalidPrice
	KindTooManyDecimals
	KindInsufficientLiquidity
	KindDecodingError
	KindNoResponseData
	KindOverflow
	KindDecimalConversionError
	KindDecimalDivisionError
	KindUnauthorized
)

type Category string

const (
	CategoryInput         Category = "input_validation"
	CategoryCapacity      Category = "capacity"
	CategoryStateLookup   Category = "state_lookup"
	CategoryMarketData    Category = "market_data"
	CategoryExecution     Category = "execution"
	CategoryArithmetic    Category = "arithmetic"
	CategoryAuthorization Category = "authorization"
)

// ContractError is the only error type returned by contract logic. Fields
// beyond Kind are populated depending on the kind.
type ContractError struct {
	Kind      ErrorKind
	Field     string
	Reason    string
	Symbol    string
	Quote     string
	Location  string
	MaxBlocks uint64
	Requested sdkmath.Uint
	Available sdkmath.Uint
}

// Is matches on kind only, so sentinel values work with errors.Is.
func (e *ContractError) Is(target error) bool {
	t, ok := target.(*ContractError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *ContractError) Error() string {
	switch e.Kind {
	case KindEmptyValue:
		return fmt.Sprintf("field %s should not be empty", e.Field)
	case KindMalformedInput:
		return fmt.Sprintf("input for %s is invalid: %s", e.Field, e.Reason)
	case KindInvalidIbcDenom:
		return fmt.Sprintf("denom %s is not a correct IBC denom: %s", e.Field, e.Reason)
	case KindNoFundsSent:
		return "no funds sent with deposit"
	case KindMultipleFundsSent:
		return "only accepts 1 token to be sold"
	case KindInvalidToken:
		return "attempted deposit of invalid token"
	case KindMaxSchedulesReached:
		return "already at max schedule capacity"
	case KindNotInstantiated:
		return "contract is not instantiated"
	case KindAlreadyInstantiated:
		return "contract is already instantiated"
	case KindScheduleNotFound:
		return "expected schedule, but not found"
	case KindNoFundsAvailable:
		return "no funds available"
	case KindUnsupportedMarket:
		return fmt.Sprintf("market %s, %s not found in %s", e.Symbol, e.Quote, e.Location)
	case KindDisabledMarket:
		return fmt.Sprintf("market %s, %s not enabled in %s", e.Symbol, e.Quote, e.Location)
	case KindPriceNotAvailable:
		return fmt.Sprintf("market %s, %s did not return a block height", e.Symbol, e.Quote)
	case KindPriceIsNil:
		return fmt.Sprintf("market %s, %s returned a nil price", e.Symbol, e.Quote)
	case KindPriceTooOld:
		return fmt.Sprintf("market %s, %s is older than %d blocks", e.Symbol, e.Quote, e.MaxBlocks)
	case KindPriceIsNegative:
		return "price cannot be negative"
	case KindInvalidPrice:
		return "price is invalid"
	case KindTooManyDecimals:
		return "too many decimals from oracle response, exceeds u32 allowance"
	case KindInsufficientLiquidity:
		return fmt.Sprintf("limit order execution used: %s, but owner only has: %s available", e.Requested.String(), e.Available.String())
	case KindDecodingError:
		return "failed to decode response data"
	case KindNoResponseData:
		return "no response data from place limit order"
	case KindOverflow:
		return fmt.Sprintf("overflow in %s", e.Field)
	case KindDecimalConversionError:
		return "failed to convert value to decimal"
	case KindDecimalDivisionError:
		return "failed to divide decimal"
	case KindUnauthorized:
		return "sender is not the resource owner"
	default:
		return fmt.Sprintf("contract error %d", int(e.Kind))
	}
}

func (e *ContractError) Category() Category {
	switch e.Kind {
	case KindMaxSchedulesReached:
		return CategoryCapacity
	case KindNotInstantiated, KindScheduleNotFound, KindNoFundsAvailable:
		return CategoryStateLookup
	case KindUnsupportedMarket, KindDisabledMarket, KindPriceNotAvailable, KindPriceIsNil,
		KindPriceTooOld, KindPriceIsNegative, KindInvalidPrice, KindTooManyDecimals:
		return CategoryMarketData
	case KindInsufficientLiquidity, KindDecodingError, KindNoResponseData:
		return CategoryExecution
	case KindOverflow, KindDecimalConversionError, KindDecimalDivisionError:
		return CategoryArithmetic
	case KindUnauthorized:
		return CategoryAuthorization
	default:
		return CategoryInput
	}
}

var (
	ErrEmptyValue             = &ContractError{Kind: KindEmptyValue}
	ErrMalformedInput         = &ContractError{Kind: KindMalformedInput}
	ErrInvalidIbcDenom        = &ContractError{Kind: KindInvalidIbcDenom}
	ErrNoFundsSent            = &ContractError{Kind: KindNoFundsSent}
	ErrMultipleFundsSent      = &ContractError{Kind: KindMultipleFundsSent}
	ErrInvalidToken           = &ContractError{Kind: KindInvalidToken}
	ErrMaxSchedulesReached    = &ContractError{Kind: KindMaxSchedulesReached}
	ErrNotInstantiated        = &ContractError{Kind: KindNotInstantiated}
	ErrAlreadyInstantiated    = &ContractError{Kind: KindAlreadyInstantiated}
	ErrScheduleNotFound       = &ContractError{Kind: KindScheduleNotFound}
	ErrNoFundsAvailable       = &ContractError{Kind: KindNoFundsAvailable}
	ErrUnsupportedMarket      = &ContractError{Kind: KindUnsupportedMarket}
	ErrDisabledMarket         = &ContractError{Kind: KindDisabledMarket}
	ErrPriceNotAvailable      = &ContractError{Kind: KindPriceNotAvailable}
	ErrPriceIsNil             = &ContractError{Kind: KindPriceIsNil}
	ErrPriceTooOld            = &ContractError{Kind: KindPriceTooOld}
	ErrPriceIsNegative        = &ContractError{Kind: KindPriceIsNegative}
	ErrInvalidPrice           = &ContractError{Kind: KindInvalidPrice}
	ErrTooManyDecimals        = &ContractError{Kind: KindTooManyDecimals}
	ErrInsufficientLiquidity  = &ContractError{Kind: KindInsufficientLiquidity}
	ErrDecodingError          = &ContractError{Kind: KindDecodingError}
	ErrNoResponseData         = &ContractError{Kind: KindNoResponseData}
	ErrOverflow               = &ContractError{Kind: KindOverflow}
	ErrDecimalConversionError = &ContractError{Kind: KindDecimalConversionError}
	ErrDecimalDivisionError   = &ContractError{Kind: KindDecimalDivisionError}
	ErrUnauthorized           = &ContractError{Kind: KindUnauthorized}
)

func errEmptyValue(field string) error {
	return &ContractError{Kind: KindEmptyValue, Field: field}
}

func errMalformedInput(field, reason string) error {
	return &ContractError{Kind: KindMalformedInput, Field: field, Reason: reason}
}

func errInvalidIbcDenom(denom, reason string) error {
	return &ContractError{Kind: KindInvalidIbcDenom, Field: denom, Reason: reason}
}

func errMarket(kind ErrorKind, symbol, quote, location string) error {
	return &ContractError{Kind: kind, Symbol: symbol, Quote: quote, Location: location}
}

func errPriceTooOld(symbol, quote string, maxBlocks uint64) error {
	return &ContractError{Kind: KindPriceTooOld, Symbol: symbol, Quote: quote, MaxBlocks: maxBlocks}
}

func errInsufficientLiquidity(requested, available sdkmath.Uint) error {
	return &ContractError{Kind: KindInsufficientLiquidity, Requested: requested, Available: available}
}

func errOverflow(field string) error {
	return &ContractError{Kind: KindOverflow, Field: field}
}

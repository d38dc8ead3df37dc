package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// GetPairID returns the canonical identifier of a denom pair. The result does
// not depend on argument order.
func GetPairID(denomA, denomB string) string {
	if denomB < denomA {
		denomA, denomB = denomB, denomA
	}
	return denomA + "<>" + denomB
}

var ErrInvalidAddress = errors.New("invalid address")

// NormalizeAddress validates a hex account address and returns its checksum
// form, so the same account always compares equal.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return common.HexToAddress(address).Hex(), nil
}

func GetSortingCondition(sort string) (string, string) {
	// Default sorting column
	orderBy := "created_at"
	orderDirection := "DESC"

	isAscending := strings.HasPrefix(sort, "+")
	isDescending := strings.HasPrefix(sort, "-")
	columnName := strings.TrimLeft(sort, "+-")

	// Only whitelisted columns reach the query
	allowedColumns := map[string]bool{"id": true, "created_at": true, "block_height": true}
	if allowedColumns[columnName] {
		orderBy = columnName
	}

	if isAscending || (!isDescending && columnName != "" && allowedColumns[columnName]) {
		orderDirection = "ASC"
	}

	return orderBy, orderDirection
}

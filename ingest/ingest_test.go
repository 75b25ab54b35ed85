package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const ethToken = "0x000000000000000000000000000000000000800a"

func validBalance() BalanceRecord {
	return BalanceRecord{
		UserAddress:  "0xAlice",
		TokenAddress: "0xWETH",
		PoolAddress:  "0xPool",
		Balance:      "1000000000000000000",
		BlockNumber:  100,
		Timestamp:    1710000000,
	}
}

func validTransaction() TransactionRecord {
	return TransactionRecord{
		Timestamp:       1710000000,
		UserAddress:     "0xAlice",
		ContractAddress: "0xSwap",
		TokenAddress:    "0xWETH",
		Decimals:        18,
		Price:           3000,
		Quantity:        "1000000000000000000",
		TxHash:          "0xAAA",
		Nonce:           1,
		BlockNumber:     100,
	}
}

func TestNormalizeTokenAddress(t *testing.T) {
	require.Equal(t, ethToken, NormalizeTokenAddress("0x0000000000000000000000000000000000000000", ethToken))
	require.Equal(t, "0xweth", NormalizeTokenAddress("0xWETH", ethToken))
}

func TestValidateBalances(t *testing.T) {
	require.NoError(t, ValidateBalances([]BalanceRecord{validBalance()}))

	for _, tc := range []struct {
		name   string
		mutate func(*BalanceRecord)
	}{
		{"missing user address", func(r *BalanceRecord) { r.UserAddress = "" }},
		{"missing pool address", func(r *BalanceRecord) { r.PoolAddress = "" }},
		{"zero block number", func(r *BalanceRecord) { r.BlockNumber = 0 }},
		{"zero timestamp", func(r *BalanceRecord) { r.Timestamp = 0 }},
		{"non-integer balance", func(r *BalanceRecord) { r.Balance = "1.5" }},
		{"negative balance", func(r *BalanceRecord) { r.Balance = "-1" }},
		{"empty balance", func(r *BalanceRecord) { r.Balance = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := validBalance()
			tc.mutate(&r)
			require.Error(t, ValidateBalances([]BalanceRecord{r}))
		})
	}
}

func TestValidateBalancesDuplicate(t *testing.T) {
	a := validBalance()
	b := validBalance()
	// Same key regardless of casing.
	b.UserAddress = "0xALICE"
	require.Error(t, ValidateBalances([]BalanceRecord{a, b}))

	b.BlockNumber = 101
	require.NoError(t, ValidateBalances([]BalanceRecord{a, b}))
}

func TestValidateTransactions(t *testing.T) {
	require.NoError(t, ValidateTransactions([]TransactionRecord{validTransaction()}))

	for _, tc := range []struct {
		name   string
		mutate func(*TransactionRecord)
	}{
		{"missing user address", func(r *TransactionRecord) { r.UserAddress = "" }},
		{"missing tx hash", func(r *TransactionRecord) { r.TxHash = "" }},
		{"zero block number", func(r *TransactionRecord) { r.BlockNumber = 0 }},
		{"zero timestamp", func(r *TransactionRecord) { r.Timestamp = 0 }},
		{"non-integer quantity", func(r *TransactionRecord) { r.Quantity = "1.5" }},
		{"negative price", func(r *TransactionRecord) { r.Price = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := validTransaction()
			tc.mutate(&r)
			require.Error(t, ValidateTransactions([]TransactionRecord{r}))
		})
	}
}

func TestValidateTransactionsDuplicate(t *testing.T) {
	a := validTransaction()
	b := validTransaction()
	require.Error(t, ValidateTransactions([]TransactionRecord{a, b}))

	// The same hash with a different nonce is a distinct event.
	b.Nonce = 2
	require.NoError(t, ValidateTransactions([]TransactionRecord{a, b}))
}

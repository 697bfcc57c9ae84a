package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/jmerrifield20/careerledger/internal/ledger"
	"go.uber.org/zap"
)

// maxValueBytes bounds a single SetData payload.
const maxValueBytes = 1 << 20

// LedgerContract is the key/value contract. Values are UTF-8 JSON written by
// the registry; a missing key reads as "".
type LedgerContract struct {
	contractapi.Contract
	logger *zap.Logger
}

func (c *LedgerContract) log() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

func stubLedger(ctx contractapi.TransactionContextInterface) *ledger.StubLedger {
	return ledger.NewStubLedger(ctx.GetStub())
}

// GetData returns the value stored under key, or "" if it was never written.
func (c *LedgerContract) GetData(ctx contractapi.TransactionContextInterface, key string) (string, error) {
	if key == "" {
		return "", errors.New("key is required")
	}
	v, err := stubLedger(ctx).Get(context.Background(), key)
	if errors.Is(err, ledger.ErrEmpty) {
		return "", nil
	}
	if err != nil {
		c.log().Error("GetData failed", zap.String("key", key), zap.Error(err))
		return "", err
	}
	return string(v), nil
}

// SetData stores value under key, replacing any previous value.
func (c *LedgerContract) SetData(ctx contractapi.TransactionContextInterface, key, value string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if value == "" {
		return errors.New("value must not be empty")
	}
	if len(value) > maxValueBytes {
		return fmt.Errorf("value of %d bytes exceeds the %d byte limit", len(value), maxValueBytes)
	}
	if err := stubLedger(ctx).Set(context.Background(), key, []byte(value)); err != nil {
		c.log().Error("SetData failed", zap.String("key", key), zap.Error(err))
		return err
	}
	c.log().Debug("SetData", zap.String("key", key), zap.String("tx", ctx.GetStub().GetTxID()))
	return nil
}

// IsAvailable reports that the contract answers.
func (c *LedgerContract) IsAvailable(ctx contractapi.TransactionContextInterface) (bool, error) {
	return true, nil
}

// ListKeys returns every key starting with prefix in ascending order.
func (c *LedgerContract) ListKeys(ctx contractapi.TransactionContextInterface, prefix string) ([]string, error) {
	keys, err := stubLedger(ctx).Keys(context.Background(), prefix)
	if err != nil {
		c.log().Error("ListKeys failed", zap.String("prefix", prefix), zap.Error(err))
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// cmd/ledgercc: Fabric chaincode exposing the flat key/value ledger the
// registry reads and writes: GetData, SetData, IsAvailable and ListKeys.
package main

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	cc, err := contractapi.NewChaincode(&LedgerContract{logger: logger})
	if err != nil {
		logger.Fatal("create ledger chaincode", zap.Error(err))
	}
	cc.Info.Title = "careerledger"
	cc.Info.Version = "1.0.0"
	if err := cc.Start(); err != nil {
		logger.Fatal("start ledger chaincode", zap.Error(err))
	}
}

package blockchain

import (
	"context"
	"fmt"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/config"
	"github.com/onflow/flow-go-sdk"
	"github.com/onflow/flow-go-sdk/crypto"
	"github.com/onflow/flow-go-sdk/crypto/cloudkms"
)

// Authorizer is the admin account that signs escrow payouts.
type Authorizer struct {
	KmsResourceId        string `json:"kmsResourceId"`
	ResourceOwnerAddress string `json:"resourceOwnerAddress"`
	KeyIndex             int    `json:"keyIndex"`
}

func GetAdminAuthorizer(cfg config.Flow) Authorizer {
	return Authorizer{
		KmsResourceId:        cfg.AdminKmsResourceName,
		ResourceOwnerAddress: cfg.AdminAuthorizerAddress,
		KeyIndex:             cfg.AdminKeyIndex,
	}
}

func (a Authorizer) Address() flow.Address {
	return flow.HexToAddress(a.ResourceOwnerAddress)
}

// Signer returns a Cloud KMS backed signer for the authorizer key.
func (a Authorizer) Signer(ctx context.Context) (crypto.Signer, error) {
	accountKMSKey, err := cloudkms.KeyFromResourceID(a.KmsResourceId)
	if err != nil {
		return nil, fmt.Errorf("parse admin kms key: %w", err)
	}

	kmsClient, err := cloudkms.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create kms client: %w", err)
	}

	signer, err := kmsClient.SignerForKey(ctx, accountKMSKey)
	if err != nil {
		return nil, fmt.Errorf("create kms signer: %w", err)
	}
	return signer, nil
}

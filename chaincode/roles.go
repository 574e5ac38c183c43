/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Role tags gating contract operations.
const (
	RoleAdmin        = "admin"
	RoleManufacturer = "manufacturer"
	RoleDistributor  = "distributor"
	RolePharmacy     = "pharmacy"
)

func validRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManufacturer, RoleDistributor, RolePharmacy:
		return true
	}
	return false
}

func roleKey(identity, role string) string {
	return roleKeyPrefix + role + "_" + identity
}

// InitLedger bootstraps the contract: the first invoking identity becomes
// the admin. Subsequent calls are no-ops so a redeploy cannot seize the
// admin role.
func (s *SmartContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	stub := ctx.GetStub()

	done, err := stub.GetState(bootstrappedKey)
	if err != nil {
		return fmt.Errorf("failed to read bootstrap marker: %v", err)
	}
	if done != nil {
		return nil
	}

	deployer, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if err := stub.PutState(roleKey(deployer, RoleAdmin), []byte("1")); err != nil {
		return fmt.Errorf("failed to grant admin role: %v", err)
	}
	return stub.PutState(bootstrappedKey, []byte("1"))
}

// GrantRole assigns a role to an identity. Admin only. Granting a role an
// identity already holds is a no-op, not an error.
func (s *SmartContract) GrantRole(ctx contractapi.TransactionContextInterface, identity, role string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	if err := s.requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("%w: identity must not be empty", ErrInvalidArgument)
	}
	if !validRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}
	return ctx.GetStub().PutState(roleKey(identity, role), []byte("1"))
}

// AddManufacturer grants the manufacturer role. Admin only.
func (s *SmartContract) AddManufacturer(ctx contractapi.TransactionContextInterface, identity string) error {
	return s.GrantRole(ctx, identity, RoleManufacturer)
}

// AddDistributor grants the distributor role. Admin only.
func (s *SmartContract) AddDistributor(ctx contractapi.TransactionContextInterface, identity string) error {
	return s.GrantRole(ctx, identity, RoleDistributor)
}

// AddPharmacy grants the pharmacy role. Admin only.
func (s *SmartContract) AddPharmacy(ctx contractapi.TransactionContextInterface, identity string) error {
	return s.GrantRole(ctx, identity, RolePharmacy)
}

// HasRole reports whether an identity holds a role. Absent identities and
// unknown roles simply yield false.
func (s *SmartContract) HasRole(ctx contractapi.TransactionContextInterface, identity, role string) (bool, error) {
	raw, err := ctx.GetStub().GetState(roleKey(identity, role))
	if err != nil {
		return false, fmt.Errorf("failed to read role %s for %s: %v", role, identity, err)
	}
	return raw != nil, nil
}

// requireRole guards role-restricted operations on the calling identity.
func (s *SmartContract) requireRole(ctx contractapi.TransactionContextInterface, role string) error {
	id, err := s.caller(ctx)
	if err != nil {
		return err
	}
	ok, err := s.HasRole(ctx, id, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: caller does not hold the %s role", ErrUnauthorized, role)
	}
	return nil
}

/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// World-state key layout: three id-indexed tables (batches, shipments,
// qr index), the role table and two counters, plus the pause flag and the
// bootstrap marker. Keys BATCH_<id> and SHIPMENT_<id> use the decimal id.
const (
	batchKeyPrefix    = "BATCH_"
	shipmentKeyPrefix = "SHIPMENT_"
	qrKeyPrefix       = "QR_"
	roleKeyPrefix     = "ROLE_"

	batchCounterKey    = "COUNTER_BATCH"
	shipmentCounterKey = "COUNTER_SHIPMENT"
	pausedKey          = "PAUSED"
	bootstrappedKey    = "BOOTSTRAPPED"
)

// SmartContract tracks pharmaceutical drug batches from issuance through
// distribution to final receipt. Ownership of a batch only ever changes by
// completing the create/receive shipment protocol.
type SmartContract struct {
	contractapi.Contract
}

// ---------- helpers ----------

func (s *SmartContract) caller(ctx contractapi.TransactionContextInterface) (string, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to read client identity: %v", err)
	}
	return id, nil
}

// txTime returns the transaction timestamp, which is identical on every
// endorsing peer. time.Now() would not be.
func txTime(stub shim.ChaincodeStubInterface) (time.Time, error) {
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read transaction timestamp: %v", err)
	}
	return ts.AsTime(), nil
}

func batchKey(id uint64) string {
	return batchKeyPrefix + strconv.FormatUint(id, 10)
}

func shipmentKey(id uint64) string {
	return shipmentKeyPrefix + strconv.FormatUint(id, 10)
}

func parseID(kind, raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q is not a valid %s id", ErrInvalidArgument, raw, kind)
	}
	return id, nil
}

func parseQuantity(raw string) (uint64, error) {
	q, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || q == 0 {
		return 0, fmt.Errorf("%w: quantity %q must be a positive integer", ErrInvalidArgument, raw)
	}
	return q, nil
}

// nextID allocates the next sequential identifier for a counter key,
// starting at 1. Ids are never reused.
func nextID(stub shim.ChaincodeStubInterface, counterKey string) (uint64, error) {
	raw, err := stub.GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %v", counterKey, err)
	}
	var next uint64 = 1
	if raw != nil {
		prev, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter %s: %v", counterKey, err)
		}
		next = prev + 1
	}
	if err := stub.PutState(counterKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %v", counterKey, err)
	}
	return next, nil
}

func emitEvent(stub shim.ChaincodeStubInterface, name string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %v", name, err)
	}
	return stub.SetEvent(name, b)
}

func (s *SmartContract) readBatch(ctx contractapi.TransactionContextInterface, id uint64) (*Batch, error) {
	raw, err := ctx.GetStub().GetState(batchKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read batch %d: %v", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: batch %d", ErrNotFound, id)
	}
	var batch Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch %d: %v", id, err)
	}
	return &batch, nil
}

func (s *SmartContract) readShipment(ctx contractapi.TransactionContextInterface, id uint64) (*Shipment, error) {
	raw, err := ctx.GetStub().GetState(shipmentKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read shipment %d: %v", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: shipment %d", ErrNotFound, id)
	}
	var sh Shipment
	if err := json.Unmarshal(raw, &sh); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipment %d: %v", id, err)
	}
	return &sh, nil
}

// ---------- pause gate ----------

func (s *SmartContract) requireNotPaused(ctx contractapi.TransactionContextInterface) error {
	raw, err := ctx.GetStub().GetState(pausedKey)
	if err != nil {
		return fmt.Errorf("failed to read pause flag: %v", err)
	}
	if raw != nil {
		return fmt.Errorf("%w: mutating operations are halted", ErrPaused)
	}
	return nil
}

// Pause halts every mutating operation. Admin only. Verification queries
// remain available while paused.
func (s *SmartContract) Pause(ctx contractapi.TransactionContextInterface) error {
	if err := s.requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	return ctx.GetStub().PutState(pausedKey, []byte("1"))
}

// Unpause lifts the halt. Admin only.
func (s *SmartContract) Unpause(ctx contractapi.TransactionContextInterface) error {
	if err := s.requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	return ctx.GetStub().DelState(pausedKey)
}

// IsPaused reports whether the contract is currently halted.
func (s *SmartContract) IsPaused(ctx contractapi.TransactionContextInterface) (bool, error) {
	raw, err := ctx.GetStub().GetState(pausedKey)
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %v", err)
	}
	return raw != nil, nil
}

// ---------- batch issuance ----------

// IssueBatch registers a new drug batch and its QR code. Manufacturer only.
// Dates are RFC 3339 strings because chaincode args are passed as strings;
// the expiry must be strictly after the transaction timestamp. Returns the
// newly allocated batch id.
func (s *SmartContract) IssueBatch(ctx contractapi.TransactionContextInterface,
	name, activeIngredient, dosage, manufacturerName, registrationNumber,
	quantityStr, manufactureDate, expiryDate, qrCode string) (uint64, error) {

	if err := s.requireNotPaused(ctx); err != nil {
		return 0, err
	}
	if err := s.requireRole(ctx, RoleManufacturer); err != nil {
		return 0, err
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return 0, err
	}

	quantity, err := parseQuantity(quantityStr)
	if err != nil {
		return 0, err
	}
	if qrCode == "" {
		return 0, fmt.Errorf("%w: qr code must not be empty", ErrInvalidArgument)
	}
	if _, err := time.Parse(time.RFC3339, manufactureDate); err != nil {
		return 0, fmt.Errorf("%w: manufacture date %q is not RFC 3339", ErrInvalidArgument, manufactureDate)
	}
	expiry, err := time.Parse(time.RFC3339, expiryDate)
	if err != nil {
		return 0, fmt.Errorf("%w: expiry date %q is not RFC 3339", ErrInvalidArgument, expiryDate)
	}

	stub := ctx.GetStub()
	now, err := txTime(stub)
	if err != nil {
		return 0, err
	}
	if !expiry.After(now) {
		return 0, fmt.Errorf("%w: expiry %s is not after issuance time %s",
			ErrInvalidExpiry, expiryDate, now.UTC().Format(time.RFC3339))
	}

	existing, err := stub.GetState(qrKeyPrefix + qrCode)
	if err != nil {
		return 0, fmt.Errorf("failed to read qr index for %s: %v", qrCode, err)
	}
	if existing != nil {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateQRCode, qrCode)
	}

	id, err := nextID(stub, batchCounterKey)
	if err != nil {
		return 0, err
	}

	batch := Batch{
		BatchID: id,
		DrugInfo: DrugInfo{
			Name:               name,
			ActiveIngredient:   activeIngredient,
			Dosage:             dosage,
			ManufacturerName:   manufacturerName,
			RegistrationNumber: registrationNumber,
		},
		Quantity:            quantity,
		ManufactureDate:     manufactureDate,
		ExpiryDate:          expiryDate,
		QRCode:              qrCode,
		IssuingManufacturer: caller,
		CurrentOwner:        caller,
		IsActive:            true,
	}
	batchBytes, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal batch %d: %v", id, err)
	}
	if err := stub.PutState(batchKey(id), batchBytes); err != nil {
		return 0, fmt.Errorf("failed to store batch %d: %v", id, err)
	}
	if err := stub.PutState(qrKeyPrefix+qrCode, []byte(strconv.FormatUint(id, 10))); err != nil {
		return 0, fmt.Errorf("failed to index qr code %s: %v", qrCode, err)
	}

	err = emitEvent(stub, "BatchIssued", BatchIssuedEvent{
		BatchID:      id,
		Manufacturer: caller,
		DrugName:     name,
		Quantity:     quantity,
		QRCode:       qrCode,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetBatch returns a batch snapshot by id.
func (s *SmartContract) GetBatch(ctx contractapi.TransactionContextInterface, batchID string) (*Batch, error) {
	id, err := parseID("batch", batchID)
	if err != nil {
		return nil, err
	}
	return s.readBatch(ctx, id)
}

// ---------- shipment protocol ----------

// CreateShipment records an intent to transfer a batch to a recipient.
// Only the batch's current owner may call it; ownership does not change
// until the recipient receives the shipment. Returns the shipment id.
func (s *SmartContract) CreateShipment(ctx contractapi.TransactionContextInterface,
	batchID, to, quantityStr, trackingNumber string) (uint64, error) {

	if err := s.requireNotPaused(ctx); err != nil {
		return 0, err
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return 0, err
	}
	bid, err := parseID("batch", batchID)
	if err != nil {
		return 0, err
	}
	quantity, err := parseQuantity(quantityStr)
	if err != nil {
		return 0, err
	}
	if to == "" {
		return 0, fmt.Errorf("%w: recipient must not be empty", ErrInvalidArgument)
	}

	batch, err := s.readBatch(ctx, bid)
	if err != nil {
		return 0, err
	}
	if batch.CurrentOwner != caller {
		return 0, fmt.Errorf("%w: only the current owner of batch %d can create a shipment", ErrUnauthorized, bid)
	}

	stub := ctx.GetStub()
	id, err := nextID(stub, shipmentCounterKey)
	if err != nil {
		return 0, err
	}
	sh := Shipment{
		ShipmentID:     id,
		BatchID:        bid,
		From:           caller,
		To:             to,
		Quantity:       quantity,
		TrackingNumber: trackingNumber,
	}
	shBytes, err := json.Marshal(sh)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal shipment %d: %v", id, err)
	}
	if err := stub.PutState(shipmentKey(id), shBytes); err != nil {
		return 0, fmt.Errorf("failed to store shipment %d: %v", id, err)
	}

	err = emitEvent(stub, "ShipmentCreated", ShipmentCreatedEvent{
		ShipmentID: id,
		BatchID:    bid,
		From:       caller,
		To:         to,
		Quantity:   quantity,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReceiveShipment completes a shipment. Only the designated recipient may
// call it, at most once; on success the batch's ownership transfers to the
// caller in the same transaction.
func (s *SmartContract) ReceiveShipment(ctx contractapi.TransactionContextInterface, shipmentID string) error {
	if err := s.requireNotPaused(ctx); err != nil {
		return err
	}
	caller, err := s.caller(ctx)
	if err != nil {
		return err
	}
	id, err := parseID("shipment", shipmentID)
	if err != nil {
		return err
	}

	sh, err := s.readShipment(ctx, id)
	if err != nil {
		return err
	}
	if sh.To != caller {
		return fmt.Errorf("%w: shipment %d is addressed to %s", ErrNotAuthorizedRecipient, id, sh.To)
	}
	if sh.Received {
		return fmt.Errorf("%w: shipment %d", ErrAlreadyReceived, id)
	}

	stub := ctx.GetStub()
	now, err := txTime(stub)
	if err != nil {
		return err
	}
	sh.Received = true
	sh.ReceivedAt = now.UTC().Format(time.RFC3339)

	shBytes, err := json.Marshal(sh)
	if err != nil {
		return fmt.Errorf("failed to marshal shipment %d: %v", id, err)
	}
	if err := stub.PutState(shipmentKey(id), shBytes); err != nil {
		return fmt.Errorf("failed to store shipment %d: %v", id, err)
	}

	batch, err := s.readBatch(ctx, sh.BatchID)
	if err != nil {
		return err
	}
	batch.CurrentOwner = caller
	batchBytes, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch %d: %v", batch.BatchID, err)
	}
	if err := stub.PutState(batchKey(batch.BatchID), batchBytes); err != nil {
		return fmt.Errorf("failed to store batch %d: %v", batch.BatchID, err)
	}

	return emitEvent(stub, "ShipmentReceived", ShipmentReceivedEvent{
		ShipmentID: id,
		BatchID:    sh.BatchID,
		Receiver:   caller,
		ReceivedAt: sh.ReceivedAt,
	})
}

// GetShipment returns a shipment snapshot by id.
func (s *SmartContract) GetShipment(ctx contractapi.TransactionContextInterface, shipmentID string) (*Shipment, error) {
	id, err := parseID("shipment", shipmentID)
	if err != nil {
		return nil, err
	}
	return s.readShipment(ctx, id)
}

// ---------- verification ----------

// VerifyByQRCode resolves a QR code to its batch. An unregistered code is
// not an error: it yields isValid=false with a lookup message.
func (s *SmartContract) VerifyByQRCode(ctx contractapi.TransactionContextInterface, qrCode string) (*VerificationResult, error) {
	raw, err := ctx.GetStub().GetState(qrKeyPrefix + qrCode)
	if err != nil {
		return nil, fmt.Errorf("failed to read qr index for %s: %v", qrCode, err)
	}
	if raw == nil {
		return &VerificationResult{IsValid: false, Message: "QR code not found"}, nil
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt qr index entry for %s: %v", qrCode, err)
	}
	batch, err := s.readBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	return &VerificationResult{IsValid: true, Batch: batch, Message: "Valid drug batch"}, nil
}

// VerifyOwnership reports whether an identity is the current owner of a
// batch. Unknown or malformed batch ids yield false rather than an error,
// keeping the query a plain boolean.
func (s *SmartContract) VerifyOwnership(ctx contractapi.TransactionContextInterface, batchID, identity string) (bool, error) {
	id, err := strconv.ParseUint(batchID, 10, 64)
	if err != nil {
		return false, nil
	}
	raw, err := ctx.GetStub().GetState(batchKey(id))
	if err != nil {
		return false, fmt.Errorf("failed to read batch %d: %v", id, err)
	}
	if raw == nil {
		return false, nil
	}
	var batch Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return false, fmt.Errorf("failed to unmarshal batch %d: %v", id, err)
	}
	return batch.CurrentOwner == identity, nil
}

// ---------- ownership token stubs ----------

// TransferBatchToken exists for compatibility with generic token transfer
// surfaces. The ownership token is bound to its holder: it rejects every
// direct transfer, for every caller including the current owner. Ownership
// moves only through CreateShipment followed by ReceiveShipment.
func (s *SmartContract) TransferBatchToken(ctx contractapi.TransactionContextInterface, batchID, to string) error {
	return fmt.Errorf("%w: cannot be transferred", ErrSoulBound)
}

// ApproveBatchToken rejects delegation of the ownership token, for every
// caller.
func (s *SmartContract) ApproveBatchToken(ctx contractapi.TransactionContextInterface, batchID, spender string) error {
	return fmt.Errorf("%w: cannot be approved", ErrSoulBound)
}

// ---------- reporting ----------

// ReportBatches returns a JSON array of batches manufactured between the
// two RFC 3339 dates, inclusive. Admin only.
func (s *SmartContract) ReportBatches(ctx contractapi.TransactionContextInterface, startDate, endDate string) (string, error) {
	if err := s.requireRole(ctx, RoleAdmin); err != nil {
		return "", err
	}

	iter, err := ctx.GetStub().GetStateByRange(batchKeyPrefix, batchKeyPrefix+"~")
	if err != nil {
		return "", fmt.Errorf("failed to scan batches: %v", err)
	}
	defer iter.Close()

	batches := []Batch{}
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return "", fmt.Errorf("failed during batch iteration: %v", err)
		}
		var batch Batch
		if err := json.Unmarshal(kv.Value, &batch); err != nil {
			return "", fmt.Errorf("failed to unmarshal batch at %s: %v", kv.Key, err)
		}
		if batch.ManufactureDate >= startDate && batch.ManufactureDate <= endDate {
			batches = append(batches, batch)
		}
	}

	report, err := json.Marshal(batches)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %v", err)
	}
	return string(report), nil
}

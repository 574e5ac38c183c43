package main

import (
	"crypto/x509"
	"fmt"
	"sort"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// mockStub is an in-memory world state covering the subset of the stub API
// the contract uses. The embedded interface panics on anything else, which
// keeps the mock honest.
type mockStub struct {
	shim.ChaincodeStubInterface
	state  map[string][]byte
	events map[string][]byte
	now    time.Time
}

func newMockStub() *mockStub {
	return &mockStub{
		state:  map[string][]byte{},
		events: map[string][]byte{},
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *mockStub) GetState(key string) ([]byte, error) {
	return m.state[key], nil
}

func (m *mockStub) PutState(key string, value []byte) error {
	m.state[key] = value
	return nil
}

func (m *mockStub) DelState(key string) error {
	delete(m.state, key)
	return nil
}

func (m *mockStub) SetEvent(name string, payload []byte) error {
	m.events[name] = payload
	return nil
}

func (m *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(m.now), nil
}

func (m *mockStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	keys := make([]string, 0, len(m.state))
	for k := range m.state {
		if k >= startKey && k < endKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	it := &stateIterator{}
	for _, k := range keys {
		it.kvs = append(it.kvs, &queryresult.KV{Key: k, Value: m.state[k]})
	}
	return it, nil
}

type stateIterator struct {
	shim.StateQueryIteratorInterface
	kvs []*queryresult.KV
	pos int
}

func (it *stateIterator) HasNext() bool {
	return it.pos < len(it.kvs)
}

func (it *stateIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("no more items")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *stateIterator) Close() error {
	return nil
}

// mockClientIdentity is a fixed caller identity, the piece the peer would
// normally derive from the client's X.509 certificate.
type mockClientIdentity struct {
	id    string
	mspID string
	attrs map[string]string
}

func (m *mockClientIdentity) GetID() (string, error) {
	return m.id, nil
}

func (m *mockClientIdentity) GetMSPID() (string, error) {
	return m.mspID, nil
}

func (m *mockClientIdentity) GetAttributeValue(name string) (string, bool, error) {
	v, ok := m.attrs[name]
	return v, ok, nil
}

func (m *mockClientIdentity) AssertAttributeValue(name, value string) error {
	v, ok := m.attrs[name]
	if !ok || v != value {
		return fmt.Errorf("attribute %s does not have value %s", name, value)
	}
	return nil
}

func (m *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

// mockTxContext pairs a shared stub with a per-call identity, so tests can
// replay the same ledger as different actors.
type mockTxContext struct {
	stub     *mockStub
	identity *mockClientIdentity
}

func (c *mockTxContext) GetStub() shim.ChaincodeStubInterface {
	return c.stub
}

func (c *mockTxContext) GetClientIdentity() cid.ClientIdentity {
	return c.identity
}

func as(stub *mockStub, identity string) *mockTxContext {
	return &mockTxContext{
		stub: stub,
		identity: &mockClientIdentity{
			id:    identity,
			mspID: "Org1MSP",
			attrs: map[string]string{},
		},
	}
}

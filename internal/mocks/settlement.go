package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockManualSettlementReporter implements settlement.ManualSettlementReporter.
type MockManualSettlementReporter struct {
	mock.Mock
}

func (m *MockManualSettlementReporter) ReportManualSettlement(reference, reason string, fields map[string]any) {
	m.Called(reference, reason, fields)
}

// MockWatcher implements settlement.Watcher.
type MockWatcher struct {
	mock.Mock
}

func (m *MockWatcher) Watch(reference, chainTxId string) {
	m.Called(reference, chainTxId)
}

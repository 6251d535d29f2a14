// Package backendtest provides a hand-written mock of backend.Backend in
// the style go.uber.org/mock's generator produces (a MockBackend plus a
// MockBackendMockRecorder for .EXPECT() call setup), without running
// mockgen. Every call is both recorded against the gomock.Controller (so
// facade tests can assert on it with .EXPECT()) and delegated to an
// embedded memory.Backend, so the mock behaves like real persistence
// instead of returning zero values the caller has to stub out by hand.
package backendtest

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/backend/memory"
	"github.com/coldbrook-sim/allegedb/common"
)

type Turn = common.Turn
type Tick = common.Tick

// MockBackend is a mock of the Backend interface.
type MockBackend struct {
	ctrl     *gomock.Controller
	recorder *MockBackendMockRecorder
	real     backend.Backend
}

// MockBackendMockRecorder is the mock recorder for MockBackend.
type MockBackendMockRecorder struct {
	mock *MockBackend
}

// NewMockBackend creates a new mock instance, backed by an in-memory
// backend.Backend for realistic behavior.
func NewMockBackend(ctrl *gomock.Controller) *MockBackend {
	m := &MockBackend{ctrl: ctrl, real: memory.New()}
	m.recorder = &MockBackendMockRecorder{m}
	return m
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockBackend) EXPECT() *MockBackendMockRecorder {
	return m.recorder
}

var _ backend.Backend = (*MockBackend)(nil)

// AllBranches mocks base method.
func (m *MockBackend) AllBranches() ([]backend.BranchRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "AllBranches")
	return m.real.AllBranches()
}

// AllBranches indicates an expected call of AllBranches.
func (mr *MockBackendMockRecorder) AllBranches() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AllBranches", reflect.TypeOf((*MockBackend)(nil).AllBranches))
}

// AllGraphs mocks base method.
func (m *MockBackend) AllGraphs() ([]backend.GraphRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "AllGraphs")
	return m.real.AllGraphs()
}

// AllGraphs indicates an expected call of AllGraphs.
func (mr *MockBackendMockRecorder) AllGraphs() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AllGraphs", reflect.TypeOf((*MockBackend)(nil).AllGraphs))
}

// TurnsDump mocks base method.
func (m *MockBackend) TurnsDump() ([]backend.TurnRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "TurnsDump")
	return m.real.TurnsDump()
}

// TurnsDump indicates an expected call of TurnsDump.
func (mr *MockBackendMockRecorder) TurnsDump() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "TurnsDump", reflect.TypeOf((*MockBackend)(nil).TurnsDump))
}

// KeyframesList mocks base method.
func (m *MockBackend) KeyframesList() ([]backend.KeyframeRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "KeyframesList")
	return m.real.KeyframesList()
}

// KeyframesList indicates an expected call of KeyframesList.
func (mr *MockBackendMockRecorder) KeyframesList() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "KeyframesList", reflect.TypeOf((*MockBackend)(nil).KeyframesList))
}

// GetKeyframe mocks base method.
func (m *MockBackend) GetKeyframe(graph string, branch string, turn Turn, tick Tick) (backend.KeyframeRow, bool, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "GetKeyframe", graph, branch, turn, tick)
	return m.real.GetKeyframe(graph, branch, turn, tick)
}

// GetKeyframe indicates an expected call of GetKeyframe.
func (mr *MockBackendMockRecorder) GetKeyframe(graph any, branch any, turn any, tick any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetKeyframe", reflect.TypeOf((*MockBackend)(nil).GetKeyframe), graph, branch, turn, tick)
}

// PlansDump mocks base method.
func (m *MockBackend) PlansDump() ([]backend.PlanRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "PlansDump")
	return m.real.PlansDump()
}

// PlansDump indicates an expected call of PlansDump.
func (mr *MockBackendMockRecorder) PlansDump() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PlansDump", reflect.TypeOf((*MockBackend)(nil).PlansDump))
}

// PlanTicksDump mocks base method.
func (m *MockBackend) PlanTicksDump() ([]backend.PlanTickRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "PlanTicksDump")
	return m.real.PlanTicksDump()
}

// PlanTicksDump indicates an expected call of PlanTicksDump.
func (mr *MockBackendMockRecorder) PlanTicksDump() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PlanTicksDump", reflect.TypeOf((*MockBackend)(nil).PlanTicksDump))
}

// LoadNodes mocks base method.
func (m *MockBackend) LoadNodes(graph string, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.NodeRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "LoadNodes", graph, branch, turnFrom, tickFrom, turnTo, tickTo)
	return m.real.LoadNodes(graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadNodes indicates an expected call of LoadNodes.
func (mr *MockBackendMockRecorder) LoadNodes(graph any, branch any, turnFrom any, tickFrom any, turnTo any, tickTo any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "LoadNodes", reflect.TypeOf((*MockBackend)(nil).LoadNodes), graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadEdges mocks base method.
func (m *MockBackend) LoadEdges(graph string, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.EdgeRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "LoadEdges", graph, branch, turnFrom, tickFrom, turnTo, tickTo)
	return m.real.LoadEdges(graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadEdges indicates an expected call of LoadEdges.
func (mr *MockBackendMockRecorder) LoadEdges(graph any, branch any, turnFrom any, tickFrom any, turnTo any, tickTo any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "LoadEdges", reflect.TypeOf((*MockBackend)(nil).LoadEdges), graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadGraphVal mocks base method.
func (m *MockBackend) LoadGraphVal(graph string, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.GraphValRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "LoadGraphVal", graph, branch, turnFrom, tickFrom, turnTo, tickTo)
	return m.real.LoadGraphVal(graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadGraphVal indicates an expected call of LoadGraphVal.
func (mr *MockBackendMockRecorder) LoadGraphVal(graph any, branch any, turnFrom any, tickFrom any, turnTo any, tickTo any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "LoadGraphVal", reflect.TypeOf((*MockBackend)(nil).LoadGraphVal), graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadNodeVal mocks base method.
func (m *MockBackend) LoadNodeVal(graph string, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.NodeValRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "LoadNodeVal", graph, branch, turnFrom, tickFrom, turnTo, tickTo)
	return m.real.LoadNodeVal(graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadNodeVal indicates an expected call of LoadNodeVal.
func (mr *MockBackendMockRecorder) LoadNodeVal(graph any, branch any, turnFrom any, tickFrom any, turnTo any, tickTo any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "LoadNodeVal", reflect.TypeOf((*MockBackend)(nil).LoadNodeVal), graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadEdgeVal mocks base method.
func (m *MockBackend) LoadEdgeVal(graph string, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.EdgeValRow, error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "LoadEdgeVal", graph, branch, turnFrom, tickFrom, turnTo, tickTo)
	return m.real.LoadEdgeVal(graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// LoadEdgeVal indicates an expected call of LoadEdgeVal.
func (mr *MockBackendMockRecorder) LoadEdgeVal(graph any, branch any, turnFrom any, tickFrom any, turnTo any, tickTo any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "LoadEdgeVal", reflect.TypeOf((*MockBackend)(nil).LoadEdgeVal), graph, branch, turnFrom, tickFrom, turnTo, tickTo)
}

// SetNode mocks base method.
func (m *MockBackend) SetNode(row backend.NodeRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetNode", row)
	return m.real.SetNode(row)
}

// SetNode indicates an expected call of SetNode.
func (mr *MockBackendMockRecorder) SetNode(row any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetNode", reflect.TypeOf((*MockBackend)(nil).SetNode), row)
}

// SetEdge mocks base method.
func (m *MockBackend) SetEdge(row backend.EdgeRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetEdge", row)
	return m.real.SetEdge(row)
}

// SetEdge indicates an expected call of SetEdge.
func (mr *MockBackendMockRecorder) SetEdge(row any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetEdge", reflect.TypeOf((*MockBackend)(nil).SetEdge), row)
}

// SetGraphVal mocks base method.
func (m *MockBackend) SetGraphVal(row backend.GraphValRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetGraphVal", row)
	return m.real.SetGraphVal(row)
}

// SetGraphVal indicates an expected call of SetGraphVal.
func (mr *MockBackendMockRecorder) SetGraphVal(row any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetGraphVal", reflect.TypeOf((*MockBackend)(nil).SetGraphVal), row)
}

// SetNodeVal mocks base method.
func (m *MockBackend) SetNodeVal(row backend.NodeValRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetNodeVal", row)
	return m.real.SetNodeVal(row)
}

// SetNodeVal indicates an expected call of SetNodeVal.
func (mr *MockBackendMockRecorder) SetNodeVal(row any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetNodeVal", reflect.TypeOf((*MockBackend)(nil).SetNodeVal), row)
}

// SetEdgeVal mocks base method.
func (m *MockBackend) SetEdgeVal(row backend.EdgeValRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetEdgeVal", row)
	return m.real.SetEdgeVal(row)
}

// SetEdgeVal indicates an expected call of SetEdgeVal.
func (mr *MockBackendMockRecorder) SetEdgeVal(row any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetEdgeVal", reflect.TypeOf((*MockBackend)(nil).SetEdgeVal), row)
}

// DelTime mocks base method.
func (m *MockBackend) DelTime(kind string, graph string, branch string, turn Turn, tick Tick) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "DelTime", kind, graph, branch, turn, tick)
	return m.real.DelTime(kind, graph, branch, turn, tick)
}

// DelTime indicates an expected call of DelTime.
func (mr *MockBackendMockRecorder) DelTime(kind any, graph any, branch any, turn any, tick any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DelTime", reflect.TypeOf((*MockBackend)(nil).DelTime), kind, graph, branch, turn, tick)
}

// NewBranch mocks base method.
func (m *MockBackend) NewBranch(row backend.BranchRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "NewBranch", row)
	return m.real.NewBranch(row)
}

// NewBranch indicates an expected call of NewBranch.
func (mr *MockBackendMockRecorder) NewBranch(row any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NewBranch", reflect.TypeOf((*MockBackend)(nil).NewBranch), row)
}

// NewGraph mocks base method.
func (m *MockBackend) NewGraph(graph string, typ string) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "NewGraph", graph, typ)
	return m.real.NewGraph(graph, typ)
}

// NewGraph indicates an expected call of NewGraph.
func (mr *MockBackendMockRecorder) NewGraph(graph any, typ any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NewGraph", reflect.TypeOf((*MockBackend)(nil).NewGraph), graph, typ)
}

// DelGraph mocks base method.
func (m *MockBackend) DelGraph(graph string) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "DelGraph", graph)
	return m.real.DelGraph(graph)
}

// DelGraph indicates an expected call of DelGraph.
func (mr *MockBackendMockRecorder) DelGraph(graph any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DelGraph", reflect.TypeOf((*MockBackend)(nil).DelGraph), graph)
}

// KeyframesInsertMany mocks base method.
func (m *MockBackend) KeyframesInsertMany(rows []backend.KeyframeRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "KeyframesInsertMany", rows)
	return m.real.KeyframesInsertMany(rows)
}

// KeyframesInsertMany indicates an expected call of KeyframesInsertMany.
func (mr *MockBackendMockRecorder) KeyframesInsertMany(rows any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "KeyframesInsertMany", reflect.TypeOf((*MockBackend)(nil).KeyframesInsertMany), rows)
}

// PlansInsertMany mocks base method.
func (m *MockBackend) PlansInsertMany(rows []backend.PlanRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "PlansInsertMany", rows)
	return m.real.PlansInsertMany(rows)
}

// PlansInsertMany indicates an expected call of PlansInsertMany.
func (mr *MockBackendMockRecorder) PlansInsertMany(rows any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PlansInsertMany", reflect.TypeOf((*MockBackend)(nil).PlansInsertMany), rows)
}

// PlanTicksInsertMany mocks base method.
func (m *MockBackend) PlanTicksInsertMany(rows []backend.PlanTickRow) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "PlanTicksInsertMany", rows)
	return m.real.PlanTicksInsertMany(rows)
}

// PlanTicksInsertMany indicates an expected call of PlanTicksInsertMany.
func (mr *MockBackendMockRecorder) PlanTicksInsertMany(rows any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PlanTicksInsertMany", reflect.TypeOf((*MockBackend)(nil).PlanTicksInsertMany), rows)
}

// SetBranch mocks base method.
func (m *MockBackend) SetBranch(branch string) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetBranch", branch)
	return m.real.SetBranch(branch)
}

// SetBranch indicates an expected call of SetBranch.
func (mr *MockBackendMockRecorder) SetBranch(branch any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetBranch", reflect.TypeOf((*MockBackend)(nil).SetBranch), branch)
}

// SetTurn mocks base method.
func (m *MockBackend) SetTurn(branch string, turn Turn, tick Tick) error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetTurn", branch, turn, tick)
	return m.real.SetTurn(branch, turn, tick)
}

// SetTurn indicates an expected call of SetTurn.
func (mr *MockBackendMockRecorder) SetTurn(branch any, turn any, tick any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetTurn", reflect.TypeOf((*MockBackend)(nil).SetTurn), branch, turn, tick)
}

// Commit mocks base method.
func (m *MockBackend) Commit() error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Commit")
	return m.real.Commit()
}

// Commit indicates an expected call of Commit.
func (mr *MockBackendMockRecorder) Commit() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Commit", reflect.TypeOf((*MockBackend)(nil).Commit))
}

// Close mocks base method.
func (m *MockBackend) Close() error {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Close")
	return m.real.Close()
}

// Close indicates an expected call of Close.
func (mr *MockBackendMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockBackend)(nil).Close))
}

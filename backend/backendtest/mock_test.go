package backendtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/coldbrook-sim/allegedb/backend"
)

func TestMockBackendDelegatesToRealStorage(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockBackend(ctrl)

	mock.EXPECT().NewGraph("phys", "DiGraph").Times(1)
	mock.EXPECT().SetNode(gomock.Any()).Times(1)
	mock.EXPECT().LoadNodes("phys", "trunk", gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(1)

	require.NoError(t, mock.NewGraph("phys", "DiGraph"))
	require.NoError(t, mock.SetNode(backend.NodeRow{Graph: "phys", Node: "alice", Branch: "trunk", Turn: 0, Tick: 0, Exists: true}))

	rows, err := mock.LoadNodes("phys", "trunk", 0, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "alice", rows[0].Node)
}

package view

import (
	"encoding/json"
	"testing"

	"github.com/Lumerin-protocol/miner-dashboard/internal/banner"
	"github.com/Lumerin-protocol/miner-dashboard/internal/format"
	"github.com/Lumerin-protocol/miner-dashboard/internal/peermap"
	"github.com/Lumerin-protocol/miner-dashboard/internal/session"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsDetached(t *testing.T) {
	s := NewState()
	s.SetExpectedTimeToBlock(format.Quantity{Value: 3, Unit: "days"})

	snap := s.Snapshot()
	s.SetExpectedTimeToBlock(format.Quantity{Value: 4, Unit: "days"})

	require.Equal(t, 3.0, snap.Facts.ExpectedTimeToBlock.Value)
}

func TestSnapshotJSON(t *testing.T) {
	s := NewState()
	s.SetBannerVisible(banner.PoolUnreachable, true)
	s.HighlightCell(peermap.Cell{X: 5, Y: 2}, peermap.Known)
	s.HighlightCell(peermap.Cell{X: 1, Y: 2}, peermap.Own)
	s.HighlightCell(peermap.Cell{X: 9, Y: 1}, peermap.Connected)
	s.UnhighlightCell(peermap.Cell{X: 9, Y: 1})
	s.SetSession(session.Snapshot{State: session.MiningPool})

	b, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var got struct {
		Banners map[string]bool `json:"banners"`
		Cells   []struct {
			X        int    `json:"x"`
			Y        int    `json:"y"`
			Category string `json:"category"`
		} `json:"cells"`
		Session struct {
			State  string `json:"state"`
			Engine string `json:"engine"`
		} `json:"session"`
		Facts struct {
			PoolBalance string `json:"poolBalance"`
			OwnHashrate struct {
				Unit string `json:"unit"`
			} `json:"ownHashrate"`
		} `json:"facts"`
	}
	require.NoError(t, json.Unmarshal(b, &got))

	require.Equal(t, map[string]bool{
		"miner-stopped":        false,
		"pool-unreachable":     true,
		"network-disconnected": false,
	}, got.Banners)
	require.Len(t, got.Cells, 2)
	require.Equal(t, 1, got.Cells[0].X)
	require.Equal(t, "own-peer", got.Cells[0].Category)
	require.Equal(t, "known-peer", got.Cells[1].Category)
	require.Equal(t, "mining-pool", got.Session.State)
	require.Equal(t, "solo", got.Session.Engine)
	require.Equal(t, "Off", got.Facts.PoolBalance)
	require.Equal(t, "H/s", got.Facts.OwnHashrate.Unit)
}

package store

import (
	"github.com/stretchr/testify/mock"

	"github.com/collabdraw/collabdraw/internal/types"
)

type MockBoardRepository struct {
	mock.Mock
}

func (m *MockBoardRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBoardRepository) AppendStroke(roomId string, stroke types.Stroke) error {
	args := m.Called(roomId, stroke)
	return args.Error(0)
}

func (m *MockBoardRepository) ListStrokesByRoom(roomId string) ([]types.Stroke, error) {
	args := m.Called(roomId)
	if strokes, ok := args.Get(0).([]types.Stroke); ok {
		return strokes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBoardRepository) DeleteStrokeById(roomId, strokeId string) error {
	args := m.Called(roomId, strokeId)
	return args.Error(0)
}

func (m *MockBoardRepository) GetProjectOwner(roomId string) (string, error) {
	args := m.Called(roomId)
	return args.String(0), args.Error(1)
}

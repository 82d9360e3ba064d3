// Package mocks provides test doubles for the pipelineapi client.
package mocks

import (
	"context"
	"time"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/brandpulse/internal/model"
	pipelineapi "github.com/sells-group/brandpulse/pkg/pipelineapi"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// GetStatus provides a mock function with given fields: ctx, subjectID
func (_m *MockClient) GetStatus(ctx context.Context, subjectID string) (*model.PipelineSnapshot, error) {
	ret := _m.Called(ctx, subjectID)

	if len(ret) == 0 {
		panic("no return value specified for GetStatus")
	}

	var r0 *model.PipelineSnapshot
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.PipelineSnapshot, error)); ok {
		return rf(ctx, subjectID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.PipelineSnapshot)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// StartDomainAudit provides a mock function with given fields: ctx, subjectID
func (_m *MockClient) StartDomainAudit(ctx context.Context, subjectID string) error {
	ret := _m.Called(ctx, subjectID)

	if len(ret) == 0 {
		panic("no return value specified for StartDomainAudit")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		return rf(ctx, subjectID)
	}
	return ret.Error(0)
}

// GenerateRecommendations provides a mock function with given fields: ctx, subjectID
func (_m *MockClient) GenerateRecommendations(ctx context.Context, subjectID string) error {
	ret := _m.Called(ctx, subjectID)

	if len(ret) == 0 {
		panic("no return value specified for GenerateRecommendations")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		return rf(ctx, subjectID)
	}
	return ret.Error(0)
}

// StreamAudit provides a mock function with given fields: ctx, subjectID
func (_m *MockClient) StreamAudit(ctx context.Context, subjectID string) (pipelineapi.Stream, error) {
	ret := _m.Called(ctx, subjectID)

	if len(ret) == 0 {
		panic("no return value specified for StreamAudit")
	}

	var r0 pipelineapi.Stream
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (pipelineapi.Stream, error)); ok {
		return rf(ctx, subjectID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(pipelineapi.Stream)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// DataUpdates provides a mock function with given fields: ctx, since
func (_m *MockClient) DataUpdates(ctx context.Context, since time.Time) (*pipelineapi.UpdatesResponse, error) {
	ret := _m.Called(ctx, since)

	if len(ret) == 0 {
		panic("no return value specified for DataUpdates")
	}

	var r0 *pipelineapi.UpdatesResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, time.Time) (*pipelineapi.UpdatesResponse, error)); ok {
		return rf(ctx, since)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*pipelineapi.UpdatesResponse)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// GetResults provides a mock function with given fields: ctx, subjectID, bypass
func (_m *MockClient) GetResults(ctx context.Context, subjectID string, bypass bool) (*model.Results, error) {
	ret := _m.Called(ctx, subjectID, bypass)

	if len(ret) == 0 {
		panic("no return value specified for GetResults")
	}

	var r0 *model.Results
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, bool) (*model.Results, error)); ok {
		return rf(ctx, subjectID, bypass)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Results)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

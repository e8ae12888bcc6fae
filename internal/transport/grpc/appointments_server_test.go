package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicsched/backend/internal/auth"
	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/appointments"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/store/memstore"
)

type fakeSchedulingService struct {
	createFn         func(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.CreateResult, error)
	checkConflictsFn func(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.ConflictReport, error)
	updateFn         func(ctx context.Context, caller domain.Caller, req appointments.UpdateRequest) (appointments.UpdateResult, error)
	deleteFn         func(ctx context.Context, caller domain.Caller, req appointments.DeleteRequest) (appointments.DeleteResult, error)
	getFn            func(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error)
	listSeriesFn     func(ctx context.Context, caller domain.Caller, groupID string) ([]domain.Appointment, error)
}

func (f *fakeSchedulingService) Create(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.CreateResult, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, caller, req)
}

func (f *fakeSchedulingService) CheckConflicts(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.ConflictReport, error) {
	if f.checkConflictsFn == nil {
		panic("CheckConflicts not configured")
	}
	return f.checkConflictsFn(ctx, caller, req)
}

func (f *fakeSchedulingService) Update(ctx context.Context, caller domain.Caller, req appointments.UpdateRequest) (appointments.UpdateResult, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, caller, req)
}

func (f *fakeSchedulingService) Delete(ctx context.Context, caller domain.Caller, req appointments.DeleteRequest) (appointments.DeleteResult, error) {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, caller, req)
}

func (f *fakeSchedulingService) Get(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, caller, id)
}

func (f *fakeSchedulingService) ListSeries(ctx context.Context, caller domain.Caller, groupID string) ([]domain.Appointment, error) {
	if f.listSeriesFn == nil {
		panic("ListSeries not configured")
	}
	return f.listSeriesFn(ctx, caller, groupID)
}

var testCaller = domain.Caller{UserID: "u-7", ProviderID: 7}

func authed() context.Context {
	return auth.WithCaller(context.Background(), testCaller)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func createBody(t *testing.T) *structpb.Struct {
	return mustStruct(t, map[string]any{
		"providerId":      7,
		"clientId":        42,
		"categoryId":      1,
		"eventDate":       "2026-01-05",
		"startTime":       "10:00",
		"durationMinutes": 50,
		"recurrence": map[string]any{
			"enabled":          true,
			"selectedWeekdays": []any{1, 3},
			"terminationType":  "count",
			"count":            4,
		},
	})
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestCreateAppointment_DecodesPayload(t *testing.T) {
	var got appointments.CreateRequest
	srv := NewAppointmentsServer(&fakeSchedulingService{
		createFn: func(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.CreateResult, error) {
			got = req
			assert.Equal(t, testCaller, caller)
			return appointments.CreateResult{RecurrenceGroupID: "g-1"}, nil
		},
	}, slog.Default())

	ctx := metadata.NewIncomingContext(authed(), metadata.Pairs("idempotency-key", "k1"))
	out, err := srv.CreateAppointment(ctx, createBody(t))
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.ProviderID)
	assert.Equal(t, "2026-01-05", got.EventDate)
	assert.Equal(t, "k1", got.IdempotencyKey)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, []int{1, 3}, got.Recurrence.Weekdays)
	assert.Equal(t, "g-1", out.GetFields()["recurrenceGroupId"].GetStringValue())
}

func TestCreateAppointment_RequiresCaller(t *testing.T) {
	srv := NewAppointmentsServer(&fakeSchedulingService{}, nil)

	_, err := srv.CreateAppointment(context.Background(), createBody(t))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestCreateAppointment_MalformedPayload(t *testing.T) {
	srv := NewAppointmentsServer(&fakeSchedulingService{}, nil)

	_, err := srv.CreateAppointment(authed(), mustStruct(t, map[string]any{"providerId": "seven"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCreateAppointment_ConflictCarriesFindings(t *testing.T) {
	day := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	srv := NewAppointmentsServer(&fakeSchedulingService{
		createFn: func(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.CreateResult, error) {
			return appointments.CreateResult{}, &appointments.ConflictError{
				Occurrences: 4,
				Findings: []domain.ConflictFinding{{
					OccurrenceDate: day,
					StartTime:      day.Add(10 * time.Hour),
					EndTime:        day.Add(10*time.Hour + 50*time.Minute),
					Reason:         "Provider is unavailable (Lunch) 10:00-11:00",
					Type:           domain.ConflictTypeAvailability,
				}},
			}
		},
	}, nil)

	_, err := srv.CreateAppointment(authed(), createBody(t))
	st := status.Convert(err)
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Len(t, st.Details(), 1)

	detail, ok := st.Details()[0].(*structpb.Struct)
	require.True(t, ok)
	fields := detail.GetFields()
	assert.Equal(t, float64(1), fields["conflictCount"].GetNumberValue())
	assert.Equal(t, float64(4), fields["occurrences"].GetNumberValue())
	first := fields["conflicts"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	assert.Equal(t, "availability", first["conflictType"].GetStringValue())
	assert.Equal(t, "2026-01-07", first["occurrenceDate"].GetStringValue())
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "validation", err: appointments.NewValidationError("bad"), want: codes.InvalidArgument},
		{name: "not found", err: store.ErrNotFound, want: codes.NotFound},
		{name: "forbidden", err: appointments.ErrForbidden, want: codes.PermissionDenied},
		{name: "idempotency", err: store.ErrIdempotencyConflict, want: codes.FailedPrecondition},
		{name: "concurrent", err: store.ErrConflict, want: codes.Aborted},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "other", err: errors.New("boom"), want: codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewAppointmentsServer(&fakeSchedulingService{
				deleteFn: func(ctx context.Context, caller domain.Caller, req appointments.DeleteRequest) (appointments.DeleteResult, error) {
					return appointments.DeleteResult{}, tc.err
				},
			}, nil)

			_, err := srv.DeleteAppointment(authed(), mustStruct(t, map[string]any{"appointmentId": uuid.NewString()}))
			assert.Equal(t, tc.want, status.Code(err))
			if tc.want == codes.Internal {
				assert.Equal(t, "internal error", status.Convert(err).Message())
			}
		})
	}
}

func TestDeleteAppointment_RejectsBadScope(t *testing.T) {
	srv := NewAppointmentsServer(&fakeSchedulingService{}, nil)

	_, err := srv.DeleteAppointment(authed(), mustStruct(t, map[string]any{
		"appointmentId": uuid.NewString(),
		"seriesData":    map[string]any{"scope": "weekly"},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRequestTimeoutInterceptor_SetsDeadline(t *testing.T) {
	interceptor := RequestTimeoutInterceptor(time.Second)
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil, nil
	})
	require.NoError(t, err)
}

func startBufconn(t *testing.T, verifier *auth.Verifier) *grpc.ClientConn {
	t.Helper()
	st := memstore.New()
	st.AddCategory(domain.Category{ID: 1, Name: "Office Visit"})
	svc := appointments.NewService(st, st)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestTimeoutInterceptor(5*time.Second),
		AuthInterceptor(verifier, nil),
	))
	RegisterSchedulingServer(server, NewAppointmentsServer(svc, nil))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSchedulingService_OverBufconn(t *testing.T) {
	verifier := auth.NewVerifier("s3cret", "")
	conn := startBufconn(t, verifier)

	token, err := verifier.Issue(testCaller, time.Minute)
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)

	created := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, FullMethod("CreateAppointment"), createBody(t), created))
	assert.Equal(t, float64(4), created.GetFields()["occurrences"].GetNumberValue())
	group := created.GetFields()["recurrenceGroupId"].GetStringValue()
	require.NotEmpty(t, group)

	series := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, FullMethod("ListSeries"), mustStruct(t, map[string]any{"recurrenceGroupId": group}), series))
	rows := series.GetFields()["appointments"].GetListValue().GetValues()
	require.Len(t, rows, 4)
	third := rows[2].GetStructValue().GetFields()["id"].GetStringValue()

	deleted := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, FullMethod("DeleteAppointment"), mustStruct(t, map[string]any{
		"appointmentId": third,
		"seriesData":    map[string]any{"scope": "future", "recurrenceGroupId": group},
	}), deleted))
	assert.Equal(t, float64(2), deleted.GetFields()["deleted"].GetNumberValue())

	err = conn.Invoke(context.Background(), FullMethod("GetAppointment"), mustStruct(t, map[string]any{"appointmentId": third}), new(structpb.Struct))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	err = conn.Invoke(ctx, FullMethod("GetAppointment"), mustStruct(t, map[string]any{"appointmentId": third}), new(structpb.Struct))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

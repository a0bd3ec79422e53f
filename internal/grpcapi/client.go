package grpcapi

import (
	"context"
	"fmt"

	"appointo/internal/apperr"
	"appointo/internal/slots"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the Availability service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetSlots lists available slots. Status codes are mapped back to apperr kinds.
func (c *Client) GetSlots(ctx context.Context, req slots.Request) ([]slots.SlotInfo, error) {
	fields := map[string]any{
		"offer":    float64(req.OfferID),
		"employee": float64(req.EmployeeID),
		"date":     req.Date,
	}
	if req.BookingID > 0 {
		fields["booking"] = float64(req.BookingID)
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListSlotsMethod, in, out); err != nil {
		return nil, fromStatus(err)
	}

	list := out.GetFields()["slots"].GetListValue().GetValues()
	result := make([]slots.SlotInfo, 0, len(list))
	for _, v := range list {
		f := v.GetStructValue().GetFields()
		result = append(result, slots.SlotInfo{
			Time:     f["time"].GetStringValue(),
			Datetime: f["datetime"].GetStringValue(),
		})
	}
	return result, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return apperr.BadRequest("%s", st.Message())
	case codes.NotFound:
		return apperr.NotFound("%s", st.Message())
	case codes.AlreadyExists:
		return apperr.Conflict("%s", st.Message())
	default:
		return fmt.Errorf("grpc %s: %s", st.Code(), st.Message())
	}
}

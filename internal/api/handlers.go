package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"appointo/internal/apperr"
	"appointo/internal/booking"
	"appointo/internal/export"
	"appointo/internal/model"
	"appointo/internal/slots"

	"github.com/gin-gonic/gin"
)

// GET /api/slots?offer=&employee=&date=[&booking=]
func (s *Server) getSlots(c *gin.Context) {
	req := slots.Request{Date: c.Query("date")}
	var err error
	if req.OfferID, err = optionalID(c.Query("offer"), "offer"); err != nil {
		s.fail(c, err)
		return
	}
	if req.EmployeeID, err = optionalID(c.Query("employee"), "employee"); err != nil {
		s.fail(c, err)
		return
	}
	if req.BookingID, err = optionalID(c.Query("booking"), "booking"); err != nil {
		s.fail(c, err)
		return
	}

	res, err := s.finder.Find(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": res.Info()})
}

// POST /api/bookings
func (s *Server) createBooking(c *gin.Context) {
	var req booking.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, apperr.BadRequest("invalid JSON body"))
		return
	}

	b, err := s.bookings.Create(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// GET /api/bookings/:id
func (s *Server) getBooking(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	b, err := s.store.GetBooking(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// PUT /api/bookings/:id
func (s *Server) rescheduleBooking(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req booking.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, apperr.BadRequest("invalid JSON body"))
		return
	}
	req.BookingID = id

	b, err := s.bookings.Reschedule(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// DELETE /api/bookings/:id answers {success, message} in every case.
func (s *Server) deleteBooking(c *gin.Context) {
	id, err := pathID(c)
	if err == nil {
		_, err = s.bookings.Cancel(c.Request.Context(), id)
	}
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("cancel booking")
		}
		c.JSON(status, gin.H{"success": false, "message": apperr.Message(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "booking canceled"})
}

// GET /api/users/:id/bookings
func (s *Server) listUserBookings(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.store.ListUserBookings(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": nonNil(list)})
}

// GET /api/services
func (s *Server) listServices(c *gin.Context) {
	all, err := s.store.ListServices(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	active := make([]model.Service, 0, len(all))
	for _, svc := range all {
		if svc.IsActive {
			active = append(active, svc)
		}
	}
	c.JSON(http.StatusOK, gin.H{"services": active})
}

// GET /api/services/:id
func (s *Server) getService(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	svc, err := s.store.GetService(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !svc.IsActive {
		s.fail(c, apperr.NotFound("service %d not found", id))
		return
	}

	offers, err := s.store.ListOffers(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	employees, err := s.store.ListEmployees(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	hours, err := s.store.ListOpeningHours(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	activeOffers := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if o.IsActive {
			activeOffers = append(activeOffers, o)
		}
	}
	activeEmployees := make([]model.Employee, 0, len(employees))
	for _, e := range employees {
		if e.IsActive {
			activeEmployees = append(activeEmployees, e)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"service":       svc,
		"offers":        activeOffers,
		"employees":     activeEmployees,
		"opening_hours": nonNil(hours),
	})
}

// GET /api/services/:id/opinions
func (s *Server) listOpinions(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.store.ListOpinions(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"opinions": nonNil(list)})
}

type createOpinionRequest struct {
	ServiceID int64  `json:"service_id" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Content   string `json:"content"`
}

// POST /api/opinions
func (s *Server) createOpinion(c *gin.Context) {
	var req createOpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, apperr.BadRequest("service_id, user_id and rating are required"))
		return
	}

	o := &model.Opinion{
		ServiceID: req.ServiceID,
		UserID:    req.UserID,
		Rating:    req.Rating,
		Content:   strings.TrimSpace(req.Content),
	}
	if err := s.store.CreateOpinion(c.Request.Context(), o); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// GET /api/opinions/:id/csrf
func (s *Server) opinionToken(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if _, err := s.store.GetOpinion(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	token, err := s.csrf.Token(id)
	if err != nil {
		s.fail(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// DELETE /api/opinions/:id with X-CSRF-Token
func (s *Server) deleteOpinion(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.csrf.Verify(c.GetHeader(CSRFHeader), id); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.DeleteOpinion(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /api/users/:id/notifications[?unread=true]
func (s *Server) listNotifications(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	list, err := s.store.ListNotifications(c.Request.Context(), id, unread)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": nonNil(list)})
}

// POST /api/notifications/:id/read
func (s *Server) markNotificationRead(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.MarkNotificationRead(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /api/admin/bookings/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) exportBookings(c *gin.Context) {
	from, to, err := export.ParseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	list, err := s.store.ListBookingsRange(ctx, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := export.BuildRows(ctx, s.store, list)
	if err != nil {
		s.fail(c, err)
		return
	}

	filename := fmt.Sprintf("bookings_%s_%s.xlsx", c.Query("from"), c.Query("to"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := export.WriteBookingsXLSX(c.Writer, rows); err != nil {
		s.logger.Error().Err(err).Msg("write export")
	}
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid id %q", c.Param("id"))
	}
	return id, nil
}

// optionalID parses a query id; empty means absent.
func optionalID(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.BadRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

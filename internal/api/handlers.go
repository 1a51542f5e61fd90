package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/wheel8/internal/engine"
	"github.com/MJE43/wheel8/internal/store"
	"github.com/MJE43/wheel8/internal/wheel"
)

const maxBodyBytes = 1 << 16

// decodeBody reads a JSON body, rejecting unknown fields and trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetVersionInfo())
}

func (s *Server) handleListWheels(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.Wheels(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	resp := WheelsResponse{Wheels: make([]WheelResponse, 0, len(records)), EngineVersion: EngineVersion}
	for i := range records {
		rec := records[i]
		resp.Wheels = append(resp.Wheels, WheelResponse{
			WheelID:            rec.ID,
			Multipliers:        rec.Config.Slice(),
			ExpectedMultiplier: rec.Config.ExpectedMultiplier().String(),
			CreatedAt:          &rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return
	}
	values, err := wheel.ParseMultipliers(req.Multipliers)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	wheelID := wheelIDParam(r)
	cfg, err := s.svc.Initialize(r.Context(), wheelID, values)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, WheelResponse{
		WheelID:            wheelID,
		Multipliers:        cfg.Slice(),
		ExpectedMultiplier: cfg.ExpectedMultiplier().String(),
	})
}

func (s *Server) handleGetWheel(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Stats(r.Context(), wheelIDParam(r))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		s.errorHandler.HandleAuthError(w, r, http.StatusUnauthorized, "Bearer token required")
		return
	}

	var req SpinRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return
	}
	if req.ClientSeed == nil {
		s.errorHandler.HandleValidationError(w, r, "client_seed", "client_seed is required")
		return
	}

	rec, err := s.svc.Spin(r.Context(), wheelIDParam(r), id.Requester, *req.ClientSeed)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSpinResponse(rec))
}

func (s *Server) handleListSpins(w http.ResponseWriter, r *http.Request) {
	q := store.SpinsQuery{WheelID: wheelIDParam(r)}
	values := r.URL.Query()

	var err error
	if q.Page, err = intParam(values.Get("page")); err != nil {
		s.errorHandler.HandleValidationError(w, r, "page", err.Error())
		return
	}
	if q.PerPage, err = intParam(values.Get("per_page")); err != nil {
		s.errorHandler.HandleValidationError(w, r, "per_page", err.Error())
		return
	}
	if requester := values.Get("requester"); requester != "" {
		id, err := engine.ParseRequesterID(requester)
		if err != nil {
			s.errorHandler.HandleValidationError(w, r, "requester", err.Error())
			return
		}
		q.Requester = id.String()
	}

	list, err := s.svc.Spins(r.Context(), q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return
	}
	requester, err := engine.ParseRequesterID(req.Requester)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "requester", err.Error())
		return
	}
	spinReq := engine.SpinRequest{Requester: requester, Anchor: req.Anchor, ClientSeed: req.ClientSeed}

	var claimed *engine.SpinResult
	if req.Claimed != nil {
		digest, err := engine.ParseDigest(req.Claimed.Digest)
		if err != nil {
			s.errorHandler.HandleValidationError(w, r, "claimed.digest", err.Error())
			return
		}
		claimed = &engine.SpinResult{
			Requester:  requester,
			Index:      req.Claimed.Index,
			Multiplier: req.Claimed.Multiplier,
			Digest:     digest,
		}
	}

	res, err := s.svc.Verify(r.Context(), wheelIDParam(r), spinReq, claimed)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		Matched:       claimed != nil,
		Request:       spinReq,
		Result:        res,
		Event:         hexEvent(res),
		EngineVersion: engine.Version,
	})
}

func (s *Server) handleGetSpin(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.SpinByID(r.Context(), chi.URLParam(r, "spinID"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSpinResponse(rec))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", v)
	}
	return n, nil
}

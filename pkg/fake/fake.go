/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fake provides in-memory doubles of the dispatch core's
// collaborators. Behaviors inject failures; zero values behave sanely.
package fake

import (
	"context"
	"sort"
	"sync"
	"time"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/geocoder"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/optimizer"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/routing"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

// Store is an in-memory ParcelStore.
type Store struct {
	mu      sync.Mutex
	Parcels map[int64]*repository.Parcel

	// Errors injected per method name.
	NextError map[string]error
}

func NewStore() *Store {
	return &Store{
		Parcels:   map[int64]*repository.Parcel{},
		NextError: map[string]error{},
	}
}

// Add stores a copy of the parcel.
func (s *Store) Add(p repository.Parcel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Parcels[p.ID] = &p
}

// Get returns the live parcel for assertions.
func (s *Store) Get(id int64) *repository.Parcel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Parcels[id]
}

func (s *Store) takeError(method string) error {
	if err, ok := s.NextError[method]; ok {
		delete(s.NextError, method)
		return err
	}
	return nil
}

func (s *Store) FindParcel(_ context.Context, id int64) (*repository.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("FindParcel"); err != nil {
		return nil, err
	}
	p, ok := s.Parcels[id]
	if !ok {
		return nil, apierrors.NotFound("parcel %d not found", id)
	}
	clone := *p
	return &clone, nil
}

func (s *Store) PendingPickupsForDriver(_ context.Context, driverID int64) ([]repository.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("PendingPickupsForDriver"); err != nil {
		return nil, err
	}
	var out []repository.Parcel
	for _, p := range s.Parcels {
		if p.Status == repository.StatusPickupPending && p.PickupDriverID != nil && *p.PickupDriverID == driverID {
			out = append(out, *p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) PendingDeliveriesForDriver(_ context.Context, driverID int64) ([]repository.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("PendingDeliveriesForDriver"); err != nil {
		return nil, err
	}
	var out []repository.Parcel
	for _, p := range s.Parcels {
		if p.Status == repository.StatusDeliveryPending && p.DeliveryDriverID != nil && *p.DeliveryDriverID == driverID {
			out = append(out, *p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst matches the repository's createdAt DESC ordering, with id
// as the tiebreak for parcels created in the same instant.
func sortNewestFirst(parcels []repository.Parcel) {
	sort.Slice(parcels, func(i, j int) bool {
		if !parcels[i].CreatedAt.Equal(parcels[j].CreatedAt) {
			return parcels[i].CreatedAt.After(parcels[j].CreatedAt)
		}
		return parcels[i].ID < parcels[j].ID
	})
}

func (s *Store) LastCompletedPickupLocation(_ context.Context, driverID int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *repository.Parcel
	for _, p := range s.Parcels {
		if p.Status != repository.StatusPickupCompleted || p.PickupDriverID == nil || *p.PickupDriverID != driverID || p.PickupCompletedAt == nil {
			continue
		}
		if latest == nil || p.PickupCompletedAt.After(*latest.PickupCompletedAt) {
			latest = p
		}
	}
	if latest == nil {
		return "", false, nil
	}
	return latest.RecipientAddr, true, nil
}

func (s *Store) LastCompletedDeliveryLocation(_ context.Context, driverID int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *repository.Parcel
	for _, p := range s.Parcels {
		if p.Status != repository.StatusDeliveryCompleted || p.DeliveryDriverID == nil || *p.DeliveryDriverID != driverID || p.DeliveryCompletedAt == nil {
			continue
		}
		if latest == nil || p.DeliveryCompletedAt.After(*latest.DeliveryCompletedAt) {
			latest = p
		}
	}
	if latest == nil {
		return "", false, nil
	}
	return latest.RecipientAddr, true, nil
}

func (s *Store) AssignPickup(_ context.Context, parcelID, driverID int64, scheduled time.Time, markNext bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("AssignPickup"); err != nil {
		return err
	}
	p, ok := s.Parcels[parcelID]
	if !ok {
		return apierrors.Conflict("assigning pickup %d affected no rows", parcelID)
	}
	p.PickupDriverID = &driverID
	p.Status = repository.StatusPickupPending
	p.PickupScheduledDate = &scheduled
	p.IsNextPickupTarget = markNext
	return nil
}

func (s *Store) ClearNextPickupTargets(_ context.Context, driverID, keepParcelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Parcels {
		if p.ID != keepParcelID && p.PickupDriverID != nil && *p.PickupDriverID == driverID {
			p.IsNextPickupTarget = false
		}
	}
	return nil
}

func (s *Store) AssignDelivery(_ context.Context, parcelID, driverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("AssignDelivery"); err != nil {
		return err
	}
	p, ok := s.Parcels[parcelID]
	if !ok || p.Status != repository.StatusDeliveryPending {
		return apierrors.Conflict("assigning delivery %d affected no rows", parcelID)
	}
	p.DeliveryDriverID = &driverID
	p.IsNextDeliveryTarget = true
	return nil
}

func (s *Store) CompletePickup(_ context.Context, parcelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("CompletePickup"); err != nil {
		return err
	}
	p, ok := s.Parcels[parcelID]
	if !ok || p.Status != repository.StatusPickupPending {
		return apierrors.Conflict("completing pickup %d affected no rows", parcelID)
	}
	now := time.Now()
	p.Status = repository.StatusPickupCompleted
	p.IsNextPickupTarget = false
	p.PickupCompletedAt = &now
	return nil
}

func (s *Store) CompleteDelivery(_ context.Context, parcelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("CompleteDelivery"); err != nil {
		return err
	}
	p, ok := s.Parcels[parcelID]
	if !ok || p.Status != repository.StatusDeliveryPending {
		return apierrors.Conflict("completing delivery %d affected no rows", parcelID)
	}
	now := time.Now()
	p.Status = repository.StatusDeliveryCompleted
	p.IsNextDeliveryTarget = false
	p.DeliveryCompletedAt = &now
	return nil
}

func (s *Store) ConvertPickupToDelivery(_ context.Context, parcelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError("ConvertPickupToDelivery"); err != nil {
		return err
	}
	p, ok := s.Parcels[parcelID]
	if !ok || p.Status != repository.StatusPickupCompleted {
		return apierrors.Conflict("converting pickup %d affected no rows", parcelID)
	}
	p.Status = repository.StatusDeliveryPending
	return nil
}

func (s *Store) TodayCompletedPickupsUnclaimedForDelivery(_ context.Context) ([]repository.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Parcel
	for _, p := range s.Parcels {
		if p.Status == repository.StatusPickupCompleted && p.DeliveryDriverID == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) TodayUnassignedDeliveries(_ context.Context) ([]repository.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Parcel
	for _, p := range s.Parcels {
		if p.Status == repository.StatusDeliveryPending && p.DeliveryDriverID == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) PendingPickupCountsByDriver(_ context.Context) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[int64]int{}
	for _, p := range s.Parcels {
		if p.Status == repository.StatusPickupPending && p.PickupDriverID != nil {
			counts[*p.PickupDriverID]++
		}
	}
	return counts, nil
}

func (s *Store) TodayCompletedPickupCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.Parcels {
		if p.Status == repository.StatusPickupCompleted {
			count++
		}
	}
	return count, nil
}

// Geocoder resolves from a fixed table and falls back to the district
// representative points like the real adapter.
type Geocoder struct {
	Results map[string]geocoder.Result
}

func NewGeocoder() *Geocoder {
	return &Geocoder{Results: map[string]geocoder.Result{}}
}

func (g *Geocoder) Set(address string, result geocoder.Result) {
	g.Results[address] = result
}

func (g *Geocoder) Geocode(_ context.Context, address string) geocoder.Result {
	if r, ok := g.Results[address]; ok {
		return r
	}
	loc, matched := geo.FallbackPoint(address)
	confidence := geocoder.ConfidenceDistrict
	district, _ := geo.DistrictFromAddress(address)
	if !matched {
		confidence = geocoder.ConfidenceCityHall
		district = ""
	}
	return geocoder.Result{Location: loc, CanonicalAddress: address, District: district, Confidence: confidence}
}

func (g *Geocoder) District(ctx context.Context, address string) string {
	if district, ok := geo.DistrictFromAddress(address); ok {
		return district
	}
	return g.Geocode(ctx, address).District
}

// Router returns canned matrices and routes.
type Router struct {
	mu          sync.Mutex
	MatrixFunc  func(points []geo.Coordinate) ([][]float64, error)
	RouteFunc   func(from, to geo.Coordinate) (*routing.RouteResponse, error)
	MatrixCalls int
	RouteCalls  int
}

func NewRouter() *Router {
	return &Router{}
}

func (r *Router) TimeDistanceMatrix(_ context.Context, points []geo.Coordinate) ([][]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MatrixCalls++
	if r.MatrixFunc != nil {
		return r.MatrixFunc(points)
	}
	matrix := make([][]float64, len(points))
	for i := range matrix {
		matrix[i] = make([]float64, len(points))
		for j := range matrix[i] {
			if i != j {
				matrix[i][j] = 600
			}
		}
	}
	return matrix, nil
}

func (r *Router) TurnByTurnRoute(_ context.Context, from, to geo.Coordinate) (*routing.RouteResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RouteCalls++
	if r.RouteFunc != nil {
		return r.RouteFunc(from, to)
	}
	return &routing.RouteResponse{
		Trip: &routing.Trip{
			Legs: []routing.Leg{{
				Maneuvers: []routing.Maneuver{
					{Instruction: "출발", Length: 1.2, Time: 180},
					{Instruction: "도착", Length: 0.3, Time: 60},
				},
				Summary: routing.TripSummary{Time: 240, Length: 1.5},
			}},
			Summary: routing.TripSummary{Time: 240, Length: 1.5},
		},
		Waypoints: []routing.Waypoint{
			{Coordinate: from, Name: "출발지", Instruction: "출발"},
			{Coordinate: to, Name: "도착지", Instruction: "도착"},
		},
		Coordinates: []geo.Coordinate{from, to},
	}, nil
}

// Optimizer returns a canned tour or an injected error.
type Optimizer struct {
	mu        sync.Mutex
	Tour      []int
	Err       error
	SolveFunc func(matrix [][]float64) (*optimizer.Tour, error)
	Calls     int
}

func NewOptimizer() *Optimizer {
	return &Optimizer{}
}

func (o *Optimizer) Solve(_ context.Context, matrix [][]float64) (*optimizer.Tour, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls++
	if o.SolveFunc != nil {
		return o.SolveFunc(matrix)
	}
	if o.Err != nil {
		return nil, o.Err
	}
	if o.Tour != nil {
		return &optimizer.Tour{Order: o.Tour}, nil
	}
	order := make([]int, len(matrix))
	for i := range order {
		order[i] = i
	}
	return &optimizer.Tour{Order: order}, nil
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

type PublishedEvent struct {
	Type     string
	ParcelID int64
	DriverID int64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(_ context.Context, eventType string, parcelID, driverID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{Type: eventType, ParcelID: parcelID, DriverID: driverID})
}

// ByType returns recorded events of one type.
func (p *Publisher) ByType(eventType string) []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedEvent
	for _, e := range p.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

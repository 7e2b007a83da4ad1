package api

import (
	"fmt"
	"strings"

	"rescuenav/internal/model"
)

func validateLatLng(name string, p model.GeoPoint) error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%s.lat out of range: %v", name, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%s.lng out of range: %v", name, p.Lng)
	}
	return nil
}

func validateRouteRequest(req *model.RouteRequest) error {
	if err := validateLatLng("start", req.Start); err != nil {
		return err
	}
	if err := validateLatLng("end", req.End); err != nil {
		return err
	}
	if req.Policy != "" && req.Policy != model.PolicyStrict && req.Policy != model.PolicyRelaxed {
		return fmt.Errorf("invalid policy: %s", req.Policy)
	}
	if req.RadiusM < 0 {
		return fmt.Errorf("radiusM must be >= 0")
	}
	return nil
}

func validateVRPRequest(req *model.VRPRequest) error {
	if len(req.Vehicles) == 0 {
		return fmt.Errorf("at least one vehicle required")
	}
	if len(req.Tasks) == 0 {
		return fmt.Errorf("at least one task required")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	for i, t := range req.Tasks {
		if t.ID == "" {
			return fmt.Errorf("tasks[%d].id required", i)
		}
		if err := validateLatLng(fmt.Sprintf("tasks[%d].location", i), t.Location); err != nil {
			return err
		}
		if t.TW != nil && t.TW.EndSec > 0 && t.TW.EndSec < t.TW.StartSec {
			return fmt.Errorf("tasks[%d] time window ends before it starts", i)
		}
	}
	for i, v := range req.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicles[%d].id required", i)
		}
	}
	if req.Objectives != nil {
		allowed := map[string]struct{}{"drivetime": {}, "distance": {}, "lateness": {}, "unserved": {}}
		for k, v := range req.Objectives {
			if v < 0 {
				return fmt.Errorf("objective %s must be >= 0", k)
			}
			if _, ok := allowed[strings.ToLower(k)]; !ok {
				return fmt.Errorf("unknown objective key: %s (allowed: driveTime,distance,lateness,unserved)", k)
			}
		}
	}
	return nil
}

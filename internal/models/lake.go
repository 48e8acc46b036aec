package models

import (
	"math"
	"time"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

const (
	secondsPerDay = 86400.0
	// molar to mass ratio of water vapour in dry air
	vapourRatio = 0.62198
	gasConstAir = 287.058
)

// Lake is a single lake water balance. Volume and level are integrated
// together with the outflow rating curve; evaporation comes from a bulk
// transfer formula with stability corrected coefficients.
type Lake struct {
	m *model.Model

	SurfaceArea       model.ParameterID
	Length            model.ParameterID
	ShoreSlope        model.ParameterID
	OutflowLevel      model.ParameterID
	RatingShape       model.ParameterID
	RatingMagnitude   model.ParameterID
	InitialWaterLevel model.ParameterID
	ReferenceDensity  model.ParameterID

	Inflow           model.InputID
	Precipitation    model.InputID
	AirTemperature   model.InputID
	WindSpeed        model.InputID
	RelativeHumidity model.InputID
	AirPressure      model.InputID

	Volume        model.EquationID
	InitialVolume model.EquationID
	WaterLevel    model.EquationID
	VolumeChange  model.EquationID
	Outflow       model.EquationID
	Evaporation   model.EquationID

	SurfaceTemperature  model.EquationID
	SaturationHumidity  model.EquationID
	VapourPressure      model.EquationID
	SpecificHumidity    model.EquationID
	AirDensity          model.EquationID
	Stability           model.EquationID
	LatentTransferCoeff model.EquationID
}

func NewLake() *Lake {
	l := &Lake{m: model.New("Easy lake")}
	m := l.m

	m.BeginModule("Lake water balance", "0.1")
	dimless := m.RegisterUnit("1")
	meter := m.RegisterUnit("m")
	m2 := m.RegisterUnit("m2")
	m3 := m.RegisterUnit("m3")
	m3s := m.RegisterUnit("m3/s")
	mmDay := m.RegisterUnit("mm/day")
	perM := m.RegisterUnit("m/m")
	m3Day := m.RegisterUnit("m3/day")

	phys := m.RegisterParameterGroup("Lake physical parameters")
	l.SurfaceArea = m.RegisterParameterDouble(phys, "Lake surface area", m2, 1e6, 0, 371e9, "")
	l.Length = m.RegisterParameterDouble(phys, "Lake length", meter, 1000, 0, 1.03e6, "Adjust when calibrating lake outflow")
	l.ShoreSlope = m.RegisterParameterDouble(phys, "Lake shore slope", perM, 0.2, 0, 4, "Roughly 2*depth/width")
	l.OutflowLevel = m.RegisterParameterDouble(phys, "Water level at which outflow is 0", meter, 10, 0, 1642, "")
	l.RatingShape = m.RegisterParameterDouble(phys, "Outflow rating curve shape", dimless, 0.3, 0, 1, "0 for a linear rating curve, 1 for a parabola")
	l.RatingMagnitude = m.RegisterParameterDouble(phys, "Outflow rating curve magnitude", dimless, 1, 0.01, 100, "Outflow is proportional to 10^magnitude")
	l.InitialWaterLevel = m.RegisterParameterDouble(phys, "Initial water level", meter, 10, 0, 1642, "")

	l.Inflow = m.RegisterInput("Lake inflow", m3s)
	l.Precipitation = m.RegisterInput("Precipitation", mmDay)

	solver := m.RegisterSolver("Lake solver", "bs32", 0.1, model.WithTolerance(1e-6))

	l.InitialVolume = m.RegisterEquationInitialValue("Initial lake volume", m3, func(v model.View) float64 {
		return 0.5 * v.Parameter(l.InitialWaterLevel) * v.Parameter(l.SurfaceArea)
	})

	l.Volume = m.RegisterEquationODE("Lake volume", m3, func(v model.View) float64 {
		return v.Result(l.VolumeChange)
	})
	m.SetSolver(l.Volume, solver)
	m.SetInitialValue(l.Volume, l.InitialVolume)

	l.WaterLevel = m.RegisterEquationODE("Water level", meter, func(v model.View) float64 {
		slope := v.Parameter(l.ShoreSlope)
		length := v.Parameter(l.Length)
		return 0.5 * slope / (length * v.Result(l.WaterLevel)) * v.Result(l.VolumeChange)
	})
	m.SetSolver(l.WaterLevel, solver)
	m.SetInitialValueParameter(l.WaterLevel, l.InitialWaterLevel)

	// The solver works in model days.
	l.VolumeChange = m.RegisterEquation("Change in lake volume", m3Day, func(v model.View) float64 {
		net := v.Input(l.Inflow) - v.Result(l.Outflow)
		rain := v.Input(l.Precipitation) - v.Result(l.Evaporation)
		return net*secondsPerDay + 1e-3*rain*v.Parameter(l.SurfaceArea)
	})
	m.SetSolver(l.VolumeChange, solver)

	l.Outflow = m.RegisterEquation("Lake outflow", m3s, func(v model.View) float64 {
		excess := max(0, v.Result(l.WaterLevel)-v.Parameter(l.OutflowLevel))
		c := v.Parameter(l.RatingShape)
		return math.Pow(10, v.Parameter(l.RatingMagnitude)) * (c*excess + (1-c)*excess*excess)
	})
	m.SetSolver(l.Outflow, solver)
	m.EndModule()

	l.addEvaporation(phys, mmDay, dimless)
	return l
}

func (l *Lake) addEvaporation(phys model.GroupID, mmDay, dimless model.UnitID) {
	m := l.m
	m.BeginModule("Lake evaporation", "0.1")
	celsius := m.RegisterUnit("°C")
	ms := m.RegisterUnit("m/s")
	percent := m.RegisterUnit("%")
	hpa := m.RegisterUnit("hPa")
	kgkg := m.RegisterUnit("kg/kg")
	kgm3 := m.RegisterUnit("kg/m3")

	l.ReferenceDensity = m.RegisterParameterDouble(phys, "Reference air density", kgm3, 1025, 1000, 1100, "")

	l.AirTemperature = m.RegisterInput("Air temperature", celsius)
	l.WindSpeed = m.RegisterInput("Wind speed at 10m", ms)
	l.RelativeHumidity = m.RegisterInput("Relative humidity", percent)
	l.AirPressure = m.RegisterInput("Air pressure", hpa)

	// No heat budget yet: the surface follows the air.
	l.SurfaceTemperature = m.RegisterEquation("Lake surface temperature", celsius, func(v model.View) float64 {
		return v.Input(l.AirTemperature)
	})

	l.SaturationHumidity = m.RegisterEquation("Saturation specific humidity", kgkg, func(v model.View) float64 {
		svap := saturationVapourPressure(v.Result(l.SurfaceTemperature))
		return vapourRatio * svap / (v.Input(l.AirPressure) - 0.377*svap)
	})

	l.VapourPressure = m.RegisterEquation("Actual vapor pressure", hpa, func(v model.View) float64 {
		return 0.01 * v.Input(l.RelativeHumidity) * saturationVapourPressure(v.Input(l.AirTemperature))
	})

	l.SpecificHumidity = m.RegisterEquation("Actual specific humidity", kgkg, func(v model.View) float64 {
		e := v.Result(l.VapourPressure)
		return vapourRatio * e / (v.Input(l.AirPressure) - 0.377*e)
	})

	l.AirDensity = m.RegisterEquation("Air density", kgm3, func(v model.View) float64 {
		kelvin := v.Input(l.AirTemperature) + 273.15
		return 100 * v.Input(l.AirPressure) / (gasConstAir * kelvin * (1 + vapourRatio*v.Result(l.SpecificHumidity)))
	})

	l.Stability = m.RegisterEquation("Stability", dimless, func(v model.View) float64 {
		w := v.Input(l.WindSpeed) + 1e-10
		s0 := 0.25 * (v.Result(l.SurfaceTemperature) - v.Input(l.AirTemperature)) / (w * w)
		return s0 * math.Abs(s0) / (math.Abs(s0) + 0.01)
	})

	l.LatentTransferCoeff = m.RegisterEquation("Transfer coefficient for latent heat flux", dimless, func(v model.View) float64 {
		return latentTransfer(v.Input(l.WindSpeed), v.Result(l.Stability))
	})

	l.Evaporation = m.RegisterEquation("Evaporation", mmDay, func(v model.View) float64 {
		rho := v.Result(l.AirDensity) / v.Parameter(l.ReferenceDensity)
		flux := rho * v.Result(l.LatentTransferCoeff) * v.Input(l.WindSpeed) *
			(v.Result(l.SaturationHumidity) - v.Result(l.SpecificHumidity))
		// m/s to mm/day
		return 86400000 * flux
	})
	m.EndModule()
}

// saturationVapourPressure is Lowe's polynomial, in hPa for a
// temperature in °C.
func saturationVapourPressure(t float64) float64 {
	const (
		a0 = 6.107799961
		a1 = 4.436518521e-1
		a2 = 1.428945805e-2
		a3 = 2.650648471e-4
		a4 = 3.031240396e-6
		a5 = 2.034080948e-8
		a6 = 6.136820929e-11
	)
	return a0 + t*(a1+t*(a2+t*(a3+t*(a4+t*(a5+t*a6)))))
}

// latentTransfer is the Kondo (1975) bulk coefficient for wind speed w
// with a stability correction.
func latentTransfer(w, stability float64) float64 {
	var a, b, c, p float64
	switch {
	case w < 2.2:
		a, b, c, p = 0, 1.23, 0, -0.16
	case w < 5:
		a, b, c, p = 0.969, 0.0521, 0, 1
	case w < 8:
		a, b, c, p = 1.18, 0.01, 0, 1
	case w < 25:
		a, b, c, p = 1.196, 0.008, -0.0004, 1
	default:
		a, b, c, p = 1.68, -0.016, 0, 1
	}
	d := w - 8
	ce := (a + b*math.Pow(w+1e-12, p) + c*d*d) * 1e-3

	if stability < 0 {
		x := 0.0
		if stability > -3.3 {
			x = 0.1 + 0.03*stability + 0.9*math.Exp(4.8*stability)
		}
		return ce * x
	}
	return ce * (1 + 0.63*math.Sqrt(stability))
}

func (l *Lake) Model() *model.Model { return l.m }

// Drive applies a snowmelt-dominated inflow and a temperate climate.
func (l *Lake) Drive(ds *storage.DataSet, cfg dynamo.Config) error {
	forcing := []struct {
		in model.InputID
		f  func(time.Time) float64
	}{
		{l.Inflow, func(d time.Time) float64 { return seasonal(d, 5, 3, 120) }},
		{l.Precipitation, func(d time.Time) float64 { return seasonal(d, 2.5, 1, 280) }},
		{l.AirTemperature, func(d time.Time) float64 { return seasonal(d, 6, 10, 200) }},
		{l.WindSpeed, func(d time.Time) float64 { return seasonal(d, 4, 1.5, 15) }},
		{l.RelativeHumidity, func(d time.Time) float64 { return seasonal(d, 75, 10, 350) }},
		{l.AirPressure, func(time.Time) float64 { return 1013.25 }},
	}
	for _, f := range forcing {
		if err := series(ds, f.in, nil, cfg, f.f); err != nil {
			return err
		}
	}
	return nil
}

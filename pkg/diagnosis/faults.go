// Package diagnosis holds the rule-based fault detector for conveyor lines
// and the prompt builders that turn its findings into LLM input.
//
// Detection is deterministic and runs before any LLM is consulted: the rules
// encode the thresholds technicians actually trip on (overcurrent, jams,
// temperature bands), and the resulting fault codes are the join keys for
// knowledge base lookup.
package diagnosis

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Severity ranks how urgently a fault needs attention.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// String returns the wire value of the severity.
func (s Severity) String() string {
	return string(s)
}

// ordinal is the sort rank; lower sorts first.
func (s Severity) ordinal() int {
	switch s {
	case SeverityEmergency:
		return 0
	case SeverityCritical:
		return 1
	case SeverityWarning:
		return 2
	default:
		return 3
	}
}

// FaultDiagnosis is one detected condition with technician-facing guidance.
type FaultDiagnosis struct {
	// FaultCode is the stable short identifier, e.g. E001 or PLC003. It is
	// the join key for knowledge base lookup.
	FaultCode string

	// Severity ranks the finding.
	Severity Severity

	// Title is the one-line name of the condition.
	Title string

	// Description explains what was observed, with measured values.
	Description string

	// LikelyCauses lists the usual suspects, most common first.
	LikelyCauses []string

	// SuggestedChecks lists concrete troubleshooting steps in order.
	SuggestedChecks []string

	// AffectedTags names the telemetry tags that triggered the rule.
	AffectedTags []string

	// RequiresMaintenance marks findings that should open a work order.
	RequiresMaintenance bool

	// RequiresSafetyReview marks findings that need a safety check before
	// any reset.
	RequiresSafetyReview bool
}

// DetectFaults analyzes a telemetry tag snapshot and returns the detected
// faults ordered by severity, most urgent first. The list is never empty:
// when no rule triggers, a single INFO diagnosis (OK or IDLE) reports the
// line state from the motion flags.
func DetectFaults(tags map[string]any) []FaultDiagnosis {
	var faults []FaultDiagnosis

	motorRunning := boolTag(tags, "motor_running")
	motorSpeed := intTag(tags, "motor_speed")
	motorCurrent := floatTag(tags, "motor_current")
	temperature := floatTag(tags, "temperature")
	pressure := intTag(tags, "pressure")
	conveyorRunning := boolTag(tags, "conveyor_running")
	conveyorSpeed := intTag(tags, "conveyor_speed")
	sensor1 := boolTag(tags, "sensor_1")
	sensor2 := boolTag(tags, "sensor_2")
	faultAlarm := boolTag(tags, "fault_alarm")
	eStop := boolTag(tags, "e_stop")
	errorCode := intTag(tags, "error_code")
	errorMessage := stringTag(tags, "error_message")

	if eStop {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "E001", Severity: SeverityEmergency,
			Title:       "Emergency Stop Active",
			Description: "The emergency stop button has been pressed. All motion is halted.",
			LikelyCauses: []string{
				"Operator pressed E-stop button", "Safety interlock triggered",
			},
			SuggestedChecks: []string{
				"Verify area is safe before reset", "Check for personnel in hazard zones",
				"Inspect equipment for damage", "Reset E-stop and clear faults in sequence",
			},
			AffectedTags:         []string{"e_stop", "motor_running", "conveyor_running"},
			RequiresSafetyReview: true,
		})
	}

	if motorRunning && motorCurrent > 5.0 {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "M001", Severity: SeverityCritical,
			Title:       "Motor Overcurrent",
			Description: fmt.Sprintf("Motor current (%.1fA) exceeds safe limit (5.0A).", motorCurrent),
			LikelyCauses: []string{
				"Mechanical binding or jam", "Bearing failure", "Belt tension too high",
			},
			SuggestedChecks: []string{
				"Check conveyor belt for jams", "Inspect motor bearings",
				"Verify belt tension", "Check motor thermal overload relay",
			},
			AffectedTags:        []string{"motor_current", "motor_running"},
			RequiresMaintenance: true,
		})
	}

	if temperature > 80.0 {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "T001", Severity: SeverityCritical,
			Title:       "High Temperature Alarm",
			Description: fmt.Sprintf("Temperature (%.1fC) exceeds safe limit (80C).", temperature),
			LikelyCauses: []string{
				"Cooling fan failure", "Blocked ventilation", "Excessive motor load",
			},
			SuggestedChecks: []string{
				"Check cooling fan operation", "Clear blocked vents",
				"Reduce motor load temporarily", "Allow cooldown before restart",
			},
			AffectedTags:        []string{"temperature"},
			RequiresMaintenance: true,
		})
	}

	if motorRunning && conveyorRunning && sensor1 && sensor2 {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "C001", Severity: SeverityCritical,
			Title:       "Conveyor Jam Detected",
			Description: "Both part sensors are active simultaneously. Product flow is blocked.",
			LikelyCauses: []string{
				"Product jam at transfer point", "Misaligned part on conveyor",
			},
			SuggestedChecks: []string{
				"Clear jammed product from conveyor", "Check downstream equipment",
				"Verify sensor alignment", "Inspect guide rails",
			},
			AffectedTags: []string{"sensor_1", "sensor_2", "conveyor_running"},
		})
	}

	if !motorRunning && conveyorSpeed > 0 && !eStop {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "M002", Severity: SeverityCritical,
			Title:       "Motor Stopped Unexpectedly",
			Description: "Motor stopped but conveyor speed setpoint is non-zero.",
			LikelyCauses: []string{
				"Thermal overload tripped", "Motor contactor failure", "VFD fault",
			},
			SuggestedChecks: []string{
				"Check motor starter/contactor", "Verify VFD status",
				"Check thermal overload relay", "Verify power at motor terminals",
			},
			AffectedTags:        []string{"motor_running", "conveyor_speed"},
			RequiresMaintenance: true,
		})
	}

	if pressure < 60 && motorRunning {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "P001", Severity: SeverityWarning,
			Title:       "Low Pneumatic Pressure",
			Description: fmt.Sprintf("System pressure (%d PSI) below normal (60+ PSI).", pressure),
			LikelyCauses: []string{
				"Compressed air supply issue", "Air leak", "Filter or regulator clogged",
			},
			SuggestedChecks: []string{
				"Check main air supply pressure", "Listen for air leaks",
				"Inspect air filter and regulator", "Verify compressor operation",
			},
			AffectedTags: []string{"pressure"},
		})
	}

	if motorRunning && motorSpeed < 30 && conveyorSpeed > 50 {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "M003", Severity: SeverityWarning,
			Title:       "Motor Speed Mismatch",
			Description: fmt.Sprintf("Motor speed (%d%%) lower than setpoint (%d%%).", motorSpeed, conveyorSpeed),
			LikelyCauses: []string{
				"Belt slipping on pulleys", "Motor struggling under load",
			},
			SuggestedChecks: []string{
				"Check belt tension and condition", "Verify motor current",
				"Check VFD parameters", "Inspect drive components",
			},
			AffectedTags: []string{"motor_speed", "conveyor_speed"},
		})
	}

	if temperature > 65.0 && temperature <= 80.0 {
		faults = append(faults, FaultDiagnosis{
			FaultCode: "T002", Severity: SeverityWarning,
			Title:       "Elevated Temperature",
			Description: fmt.Sprintf("Temperature (%.1fC) above normal (65C). Monitor closely.", temperature),
			LikelyCauses: []string{
				"Heavy continuous operation", "Reduced cooling efficiency",
			},
			SuggestedChecks: []string{
				"Monitor temperature trend", "Ensure cooling is adequate",
				"Plan maintenance window if trend continues",
			},
			AffectedTags: []string{"temperature"},
		})
	}

	if faultAlarm && errorCode > 0 {
		title := errorMessage
		if title == "" {
			title = fmt.Sprintf("Error Code %d", errorCode)
		}
		faults = append(faults, FaultDiagnosis{
			FaultCode: fmt.Sprintf("PLC%03d", errorCode), Severity: SeverityCritical,
			Title:        "PLC Fault: " + title,
			Description:  fmt.Sprintf("The PLC has reported fault code %d.", errorCode),
			LikelyCauses: []string{"See PLC fault documentation"},
			SuggestedChecks: []string{
				"Review PLC fault log", "Check associated I/O points",
				"Verify sensor and actuator operation",
			},
			AffectedTags:        []string{"fault_alarm", "error_code"},
			RequiresMaintenance: true,
		})
	}

	if len(faults) == 0 {
		if motorRunning && conveyorRunning {
			faults = append(faults, FaultDiagnosis{
				FaultCode: "OK", Severity: SeverityInfo,
				Title:       "System Running Normally",
				Description: "All monitored parameters are within normal ranges.",
			})
		} else {
			faults = append(faults, FaultDiagnosis{
				FaultCode: "IDLE", Severity: SeverityInfo,
				Title:       "System Idle",
				Description: "Equipment is stopped. Ready to start when commanded.",
			})
		}
	}

	// Stable sort keeps rule order within the same severity.
	sort.SliceStable(faults, func(i, j int) bool {
		return faults[i].Severity.ordinal() < faults[j].Severity.ordinal()
	})
	return faults
}

// Tag values arrive as bool/float64 from JSON and bool/int/float64 from the
// direct Modbus decode. The coercions below accept either shape.

func boolTag(tags map[string]any, key string) bool {
	switch v := tags[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}

func intTag(tags map[string]any, key string) int {
	switch v := tags[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func floatTag(tags map[string]any, key string) float64 {
	switch v := tags[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func stringTag(tags map[string]any, key string) string {
	if v, ok := tags[key].(string); ok {
		return v
	}
	return ""
}

// BuildDiagnosisPrompt assembles the structured prompt sent to the LLM: the
// tag table, the detected faults, and the technician's question.
func BuildDiagnosisPrompt(question string, tags map[string]any, faults []FaultDiagnosis) string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var tagLines []string
	for _, key := range keys {
		if strings.HasPrefix(key, "_") || key == "id" || key == "timestamp" || key == "node_id" {
			continue
		}
		tagLines = append(tagLines, fmt.Sprintf("  %s: %s", key, displayTag(tags[key])))
	}
	tagState := strings.Join(tagLines, "\n")

	var faultLines []string
	for _, f := range faults {
		if f.Severity == SeverityInfo {
			continue
		}
		faultLines = append(faultLines,
			fmt.Sprintf("  [%s] %s: %s", strings.ToUpper(string(f.Severity)), f.FaultCode, f.Title),
			"    "+f.Description)
		if len(f.LikelyCauses) > 0 {
			causes := f.LikelyCauses
			if len(causes) > 3 {
				causes = causes[:3]
			}
			faultLines = append(faultLines, "    Causes: "+strings.Join(causes, ", "))
		}
	}
	faultState := "  No active faults detected"
	if len(faultLines) > 0 {
		faultState = strings.Join(faultLines, "\n")
	}

	return fmt.Sprintf(`CURRENT EQUIPMENT STATE:
%s

DETECTED FAULTS:
%s

TECHNICIAN'S QUESTION:
%s

INSTRUCTIONS:
1. Answer the technician's question directly and concisely
2. Reference specific tag values when relevant
3. Provide 2-4 actionable troubleshooting steps
4. Use plain language - avoid jargon
5. If safety is a concern, mention it first
6. Keep response under 200 words

RESPONSE:`, tagState, faultState, question)
}

// BuildWhyStoppedPrompt is the canned prompt for "why is it stopped".
func BuildWhyStoppedPrompt(tags map[string]any, faults []FaultDiagnosis) string {
	return BuildDiagnosisPrompt(
		"Why is this equipment stopped? What should I check first?", tags, faults)
}

// BuildStatusSummaryPrompt is the canned prompt for a one-line status.
func BuildStatusSummaryPrompt(tags map[string]any, faults []FaultDiagnosis) string {
	return BuildDiagnosisPrompt(
		"Give me a one-sentence status summary of this equipment.", tags, faults)
}

// displayTag renders one tag value for the prompt. Booleans and 0/1 numerics
// render ON/OFF, fractional floats as %.2f, everything else verbatim.
func displayTag(v any) string {
	switch t := v.(type) {
	case bool:
		return onOff(t)
	case float64:
		if t == 0 || t == 1 {
			return onOff(t == 1)
		}
		if t == math.Trunc(t) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%.2f", t)
	case int:
		if t == 0 || t == 1 {
			return onOff(t == 1)
		}
		return fmt.Sprintf("%d", t)
	case int64:
		if t == 0 || t == 1 {
			return onOff(t == 1)
		}
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprint(v)
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

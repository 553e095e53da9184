package messages

import "testing"

func textMsg(text string) InboundMessage {
	msg := NewInbound(ChannelHTTPAPI, "u1", text)
	msg.ID = "t1"
	return msg
}

// ============================================================================
// Classifier Tests
// ============================================================================

func TestClassify_Diagnose(t *testing.T) {
	cases := []string{
		"Why is the conveyor stopped?",
		"What fault is showing?",
		"why is it down",
		"motor stopped again",
		"the line is down, motor won't spin",
		"diagnose the compressor",
	}
	for _, text := range cases {
		if got := Classify(textMsg(text)); got != IntentDiagnose {
			t.Errorf("Classify(%q) = %v, expected %v", text, got, IntentDiagnose)
		}
	}
}

func TestClassify_Status(t *testing.T) {
	cases := []string{
		"Show me current status",
		"What are the tag readings?",
		"show me io",
		"live io",
	}
	for _, text := range cases {
		if got := Classify(textMsg(text)); got != IntentStatus {
			t.Errorf("Classify(%q) = %v, expected %v", text, got, IntentStatus)
		}
	}
}

func TestClassify_PhotoAttachment(t *testing.T) {
	msg := textMsg("")
	msg.Attachments = []Attachment{{Type: AttachmentImage, Data: []byte("fake")}}
	if got := Classify(msg); got != IntentPhoto {
		t.Errorf("Expected %v for image attachment, got %v", IntentPhoto, got)
	}

	// Image attachment wins even when the caption matches another rule.
	msg.Text = "why is this motor stopped"
	if got := Classify(msg); got != IntentPhoto {
		t.Errorf("Expected %v for captioned image, got %v", IntentPhoto, got)
	}
}

func TestClassify_NonImageAttachmentIgnored(t *testing.T) {
	msg := textMsg("what fault is showing")
	msg.Attachments = []Attachment{{Type: AttachmentDocument, Data: []byte("pdf")}}
	if got := Classify(msg); got != IntentDiagnose {
		t.Errorf("Expected %v for document attachment, got %v", IntentDiagnose, got)
	}
}

func TestClassify_WorkOrder(t *testing.T) {
	cases := []string{
		"Create a work order for motor repair",
		"open a wo for the pump",
		"schedule maintenance on line 2",
	}
	for _, text := range cases {
		if got := Classify(textMsg(text)); got != IntentWorkOrder {
			t.Errorf("Classify(%q) = %v, expected %v", text, got, IntentWorkOrder)
		}
	}
}

func TestClassify_Commands(t *testing.T) {
	cases := map[string]Intent{
		"/health":             IntentAdmin,
		"/admin":              IntentAdmin,
		"/help":               IntentHelp,
		"/start":              IntentHelp,
		"/diagnose":           IntentDiagnose,
		"/status":             IntentStatus,
		"/photo":              IntentPhoto,
		"/wo bearing change":  IntentWorkOrder,
		"/workorder":          IntentWorkOrder,
		"/search PLC manuals": IntentSearch,
		"/run uptime":         IntentShell,
		"/diagram DOL 11kW":   IntentDiagram,
		"/wiring":             IntentDiagram,
		"/gist PRD for HMI":   IntentGist,
		"/project modbus cli": IntentProject,
	}
	for text, expected := range cases {
		if got := Classify(textMsg(text)); got != expected {
			t.Errorf("Classify(%q) = %v, expected %v", text, got, expected)
		}
	}
}

func TestClassify_UnknownCommandFallsThrough(t *testing.T) {
	// Unknown slash commands are matched against the keyword rules.
	if got := Classify(textMsg("/frobnicate the widget")); got != IntentChat {
		t.Errorf("Expected %v for unknown command, got %v", IntentChat, got)
	}
	if got := Classify(textMsg("/restart the fault alarm")); got != IntentDiagnose {
		t.Errorf("Expected %v for unknown command with fault text, got %v", IntentDiagnose, got)
	}
}

func TestClassify_Admin(t *testing.T) {
	if got := Classify(textMsg("show me budget")); got != IntentAdmin {
		t.Errorf("Expected %v, got %v", IntentAdmin, got)
	}
}

func TestClassify_Diagram(t *testing.T) {
	cases := []string{
		"draw the 220V power feed",
		"wiring for the star-delta starter",
		"update the print with the new contactor",
	}
	for _, text := range cases {
		if got := Classify(textMsg(text)); got != IntentDiagram {
			t.Errorf("Classify(%q) = %v, expected %v", text, got, IntentDiagram)
		}
	}
}

func TestClassify_ProjectAndGist(t *testing.T) {
	if got := Classify(textMsg("scaffold a modbus scanner")); got != IntentProject {
		t.Errorf("Expected %v, got %v", IntentProject, got)
	}
	if got := Classify(textMsg("build me a telegram bot for alerts")); got != IntentProject {
		t.Errorf("Expected %v, got %v", IntentProject, got)
	}
	if got := Classify(textMsg("draft a strategy doc for edge AI")); got != IntentGist {
		t.Errorf("Expected %v, got %v", IntentGist, got)
	}
}

func TestClassify_Shell(t *testing.T) {
	if got := Classify(textMsg("$ ls /opt")); got != IntentShell {
		t.Errorf("Expected %v, got %v", IntentShell, got)
	}
	if got := Classify(textMsg("run df -h")); got != IntentShell {
		t.Errorf("Expected %v, got %v", IntentShell, got)
	}
}

func TestClassify_Search(t *testing.T) {
	if got := Classify(textMsg("look up Micro820 Ethernet setup")); got != IntentSearch {
		t.Errorf("Expected %v, got %v", IntentSearch, got)
	}
}

func TestClassify_Help(t *testing.T) {
	cases := []string{"help", "menu", "what can you do"}
	for _, text := range cases {
		if got := Classify(textMsg(text)); got != IntentHelp {
			t.Errorf("Classify(%q) = %v, expected %v", text, got, IntentHelp)
		}
	}
}

func TestClassify_ChatFallback(t *testing.T) {
	if got := Classify(textMsg("hello how are you")); got != IntentChat {
		t.Errorf("Expected %v, got %v", IntentChat, got)
	}
}

func TestClassify_BlankIsUnknown(t *testing.T) {
	if got := Classify(textMsg("")); got != IntentUnknown {
		t.Errorf("Expected %v for empty text, got %v", IntentUnknown, got)
	}
	if got := Classify(textMsg("   \n\t ")); got != IntentUnknown {
		t.Errorf("Expected %v for whitespace text, got %v", IntentUnknown, got)
	}
}

func TestClassify_OrderMattersWorkOrderBeforeDiagram(t *testing.T) {
	// "work order" outranks the looser diagram/status words.
	if got := Classify(textMsg("create a wo to redraw the schematic")); got != IntentWorkOrder {
		t.Errorf("Expected %v, got %v", IntentWorkOrder, got)
	}
}

func TestClassify_Pure(t *testing.T) {
	msg := textMsg("why is the motor stopped")
	first := Classify(msg)
	second := Classify(msg)
	if first != second {
		t.Errorf("Classify not deterministic: %v then %v", first, second)
	}
	if msg.Intent != IntentUnknown {
		t.Errorf("Classify must not mutate the message, intent became %v", msg.Intent)
	}
}

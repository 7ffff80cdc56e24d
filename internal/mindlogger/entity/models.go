// Package entity declares the gorm models of the applet platform. Current
// rows and their *_histories snapshots share embedded attribute structs so a
// snapshot is always a field-for-field copy.
package entity

// Models is the AutoMigrate set of the default database.
func Models() []interface{} {
	return []interface{}{
		&User{}, &UserWorkspace{}, &UserDevice{}, &UserDeviceEventHistory{},
		&Applet{}, &AppletHistory{},
		&Activity{}, &ActivityHistory{}, &ActivityItem{}, &ActivityItemHistory{},
		&Flow{}, &FlowHistory{}, &FlowItem{}, &FlowItemHistory{},
		&Subject{}, &SubjectRelation{},
		&Event{}, &EventHistory{}, &Notification{}, &Reminder{},
		&UserAppletAccess{}, &Invitation{}, &UserPin{},
		&AnswerNote{}, &Alert{}, &Job{},
		&Answer{}, &AnswerItem{},
	}
}

// AnswerModels is the AutoMigrate set of an arbitrary (workspace) database.
// The answers schema is identical to the default database's.
func AnswerModels() []interface{} {
	return []interface{}{&Answer{}, &AnswerItem{}}
}

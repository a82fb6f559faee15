package models

type DeviationEventStatus string

const (
	DeviationEventStatusOpen         DeviationEventStatus = "Open"
	DeviationEventStatusAcknowledged DeviationEventStatus = "Acknowledged"
	DeviationEventStatusClosed       DeviationEventStatus = "Closed"
)

func (s DeviationEventStatus) IsValid() bool {
	switch s {
	case DeviationEventStatusOpen, DeviationEventStatusAcknowledged, DeviationEventStatusClosed:
		return true
	}
	return false
}

type ProductionDayStatus string

const (
	ProductionDayStatusActive ProductionDayStatus = "Active"
	ProductionDayStatusClosed ProductionDayStatus = "Closed"
)

func (s ProductionDayStatus) IsValid() bool {
	return s == ProductionDayStatusActive || s == ProductionDayStatusClosed
}

type UserRole string

const (
	UserRoleOperator   UserRole = "Operator"
	UserRoleMaster     UserRole = "Master"
	UserRoleSupervisor UserRole = "Supervisor"
	UserRoleAdmin      UserRole = "Admin"
)

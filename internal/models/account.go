package models

import "time"

const (
	RoleHospitalAdmin = "hospital_administrador"
	RoleDoctor        = "doctor"
	RoleMonitor       = "monitor"
)

type User struct {
	UserID     string    `json:"userId"`
	HospitalID string    `json:"hospitalId"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Doctor struct {
	DoctorID           string    `json:"doctorId"`
	UserID             string    `json:"userId"`
	HospitalID         string    `json:"hospitalId"`
	Email              string    `json:"email"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	FullName           string    `json:"fullName"`
	CedulaProfesional  string    `json:"cedulaProfesional"`
	Especialidad       string    `json:"especialidad"`
	TelefonoDeContacto string    `json:"telefonoDeContacto"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Monitor struct {
	MonitorID  string    `json:"monitorId"`
	UserID     string    `json:"userId"`
	HospitalID string    `json:"hospitalId"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	FullName   string    `json:"fullName"`
	Phone      string    `json:"phone"`
	Cedula     string    `json:"cedula"`
	CreatedAt  time.Time `json:"createdAt"`
}

func FullName(firstName, lastName string) string {
	switch {
	case firstName == "":
		return lastName
	case lastName == "":
		return firstName
	default:
		return firstName + " " + lastName
	}
}

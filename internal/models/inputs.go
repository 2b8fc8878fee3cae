package models

// SensorInput 传感器创建/更新请求体（POST/PUT /sensors）
type SensorInput struct {
	Matricule        string   `json:"matricule"`
	FamilleID        ID       `json:"famille_id"`
	ServiceID        ID       `json:"service_id"`
	SeuilMin         *float64 `json:"seuil_min"`
	SeuilMax         *float64 `json:"seuil_max"`
	AdresseIP        string   `json:"adresse_ip"`
	AdresseMAC       string   `json:"adresse_mac"`
	Unite            string   `json:"unite"`
	DateInstallation string   `json:"date_installation"`
}

// ClinicInput 诊所请求体
type ClinicInput struct {
	Nom     string `json:"nom"`
	Adresse string `json:"adresse"`
}

// FamilyInput 传感器族请求体
type FamilyInput struct {
	Nom    string `json:"nom"`
	TypeID ID     `json:"type_id"`
}

// TypeInput 传感器大类请求体
type TypeInput struct {
	Nom string `json:"nom"`
}

// UserInput 用户请求体，密码只在创建或修改时出现
type UserInput struct {
	Nom         string   `json:"nom"`
	Prenom      string   `json:"prenom"`
	Email       string   `json:"email"`
	Password    string   `json:"password,omitempty"`
	Role        string   `json:"role"`
	Statut      string   `json:"statut"`
	Permissions []string `json:"permissions"`
	ClinicIDs   []ID     `json:"clinique_ids,omitempty"`
}

// AlertStatusPatch 报警状态变更（PATCH /alerts/{id}）
type AlertStatusPatch struct {
	Statut         string `json:"statut"`
	DateResolution string `json:"date_resolution"`
}

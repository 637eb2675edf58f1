package main

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// catalog exportación del directorio externo (usuarios, proveedores y productos).
type catalog struct {
	Users     []userNode     `xml:"usuarios>usuario"`
	Suppliers []supplierNode `xml:"proveedores>proveedor"`
	Products  []productNode  `xml:"productos>producto"`
}

type userNode struct {
	ID     string `xml:"id,attr"`
	Name   string `xml:"nombre,attr"`
	Email  string `xml:"email,attr"`
	Role   string `xml:"rol,attr"`
	Active string `xml:"activo,attr"`
}

type supplierNode struct {
	ID     string `xml:"id,attr"`
	Name   string `xml:"nombre,attr"`
	Status string `xml:"estado,attr"`
}

type productNode struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"nombre,attr"`
	Category string `xml:"categoria,attr"`
	Status   string `xml:"estado,attr"`
}

type seedUser struct {
	entity.User
	Email string
}

// seedData filas normalizadas listas para insertar.
type seedData struct {
	Users     []seedUser
	Suppliers []entity.Supplier
	Products  []entity.Product
}

// parseCatalog decodifica el XML (UTF-8 o ISO-8859-1) y normaliza sus filas.
// Los nodos sin id reciben un UUID derivado de su clave natural para que resembrar sea idempotente.
func parseCatalog(r io.Reader) (*seedData, error) {
	var c catalog
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		if strings.EqualFold(charset, "ISO-8859-1") || strings.EqualFold(charset, "ISO8859-1") || strings.EqualFold(charset, "latin1") {
			return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
		}
		return input, nil
	}
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decodificar catálogo: %w", err)
	}

	out := &seedData{}
	for i, u := range c.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email == "" {
			return nil, fmt.Errorf("usuario %d: email requerido", i+1)
		}
		role := strings.ToUpper(strings.TrimSpace(u.Role))
		switch role {
		case entity.RoleAdmin, entity.RoleStaff, entity.RoleCustomer:
		default:
			return nil, fmt.Errorf("usuario %s: rol inválido %q", email, u.Role)
		}
		id, err := seedID(u.ID, "user:"+email)
		if err != nil {
			return nil, fmt.Errorf("usuario %s: %w", email, err)
		}
		out.Users = append(out.Users, seedUser{
			User: entity.User{
				ID:     id,
				Name:   cleanName(u.Name),
				Role:   role,
				Active: !strings.EqualFold(strings.TrimSpace(u.Active), "false"),
			},
			Email: email,
		})
	}

	for i, s := range c.Suppliers {
		name := cleanName(s.Name)
		if name == "" {
			return nil, fmt.Errorf("proveedor %d: nombre requerido", i+1)
		}
		id, err := seedID(s.ID, "supplier:"+strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("proveedor %s: %w", name, err)
		}
		status := strings.ToLower(strings.TrimSpace(s.Status))
		if status == "" {
			status = "active"
		}
		out.Suppliers = append(out.Suppliers, entity.Supplier{ID: id, Name: name, Status: status})
	}

	for i, p := range c.Products {
		name := cleanName(p.Name)
		if name == "" {
			return nil, fmt.Errorf("producto %d: nombre requerido", i+1)
		}
		status := strings.ToLower(strings.TrimSpace(p.Status))
		switch status {
		case "":
			status = entity.ProductStatusActive
		case entity.ProductStatusActive, entity.ProductStatusInactive:
		default:
			return nil, fmt.Errorf("producto %s: estado inválido %q", name, p.Status)
		}
		id, err := seedID(p.ID, "product:"+strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("producto %s: %w", name, err)
		}
		out.Products = append(out.Products, entity.Product{
			ID:       id,
			Name:     name,
			Category: cleanName(p.Category),
			Status:   status,
		})
	}
	return out, nil
}

var seedNamespace = uuid.MustParse("6f1c2a8e-3d4b-4c6f-9a1e-5b7d8c9e0f12")

func seedID(raw, natural string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.NewSHA1(seedNamespace, []byte(natural)).String(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("id inválido %q", raw)
	}
	return id.String(), nil
}

// cleanName recorta espacios y lleva a NFC; las exportaciones mezclan tildes compuestas y descompuestas.
func cleanName(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

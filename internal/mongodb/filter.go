package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"stealthcompany.com/patientrecords/internal/dal"
)

func mongoOperator(op dal.Operator) (string, error) {
	switch op {
	case dal.OpEqual:
		return "$eq", nil
	case dal.OpGreaterOrEqual:
		return "$gte", nil
	case dal.OpLess:
		return "$lt", nil
	}
	return "", fmt.Errorf("unsupported operator %q", op)
}

// BuildFilter translates store filters into a query document. Each filter
// becomes one $and clause; a filter with several fields becomes an $or.
func BuildFilter(filters []dal.Filter) (bson.D, error) {
	if len(filters) == 0 {
		return bson.D{}, nil
	}

	clauses := make(bson.A, 0, len(filters))
	for i, f := range filters {
		if len(f.Fields) == 0 {
			return nil, fmt.Errorf("filter %d has no fields", i)
		}
		op, err := mongoOperator(f.Op)
		if err != nil {
			return nil, err
		}

		if len(f.Fields) == 1 {
			clauses = append(clauses, bson.D{{Key: f.Fields[0], Value: bson.D{{Key: op, Value: f.Value}}}})
			continue
		}

		alternatives := make(bson.A, 0, len(f.Fields))
		for _, field := range f.Fields {
			alternatives = append(alternatives, bson.D{{Key: field, Value: bson.D{{Key: op, Value: f.Value}}}})
		}
		clauses = append(clauses, bson.D{{Key: "$or", Value: alternatives}})
	}

	return bson.D{{Key: "$and", Value: clauses}}, nil
}

// BuildSort orders by the first range field, then by document key
func BuildSort(filters []dal.Filter) bson.D {
	for _, f := range filters {
		if f.Op.IsRange() && len(f.Fields) > 0 {
			return bson.D{{Key: f.Fields[0], Value: 1}, {Key: "_id", Value: 1}}
		}
	}
	return bson.D{{Key: "_id", Value: 1}}
}

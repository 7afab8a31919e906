// Package modelfile reads model definitions from disk.
//
// Two formats are supported, chosen by file extension.
//
// Line format (.txt):
//
//	# comments and blank lines are ignored
//	FUNCTION: resultado = precio * cantidad
//	ITERATIONS: 5000
//	VAR: precio,normal,mean=100,std=15
//	VAR: cantidad,uniform,min=1,max=10
//
// ITERATIONS defaults to 1000. Several FUNCTION lines form one formula,
// one statement per line. Variable parameters that are omitted take the
// distribution defaults.
//
// CUE format (.cue):
//
//	model: {
//		formula:    "result = x * 2"
//		iterations: 500
//		variables: [{name: "x", distribution: "uniform", parameters: {min: 0, max: 1}}]
//	}
//
// validated against the embedded #Model schema.
//
// Both formats produce a domain.Model with a freshly generated model id.
package modelfile
